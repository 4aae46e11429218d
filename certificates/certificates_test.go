/*
 *  MIT License
 *
 *  Copyright (c) 2020 Nicolas JUHEL
 *
 *  Permission is hereby granted, free of charge, to any person obtaining a copy
 *  of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 *  to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *  copies of the Software, and to permit persons to whom the Software is
 *  furnished to do so, subject to the following conditions:
 *
 *  The above copyright notice and this permission notice shall be included in all
 *  copies or substantial portions of the Software.
 *
 *  THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *  IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *  AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *  LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *  OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *  SOFTWARE.
 *
 */

package certificates_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"time"

	libtls "github.com/flowgate/flowgate/certificates"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func genCertificate() ([]byte, []byte) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).ToNot(HaveOccurred())

	notBefore := time.Now()
	notAfter := notBefore.Add(time.Hour * 24 * 365)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	Expect(err).ToNot(HaveOccurred())

	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{Organization: []string{"Acme Co"}},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"example.com", "localhost"},
	}
	if ip := net.ParseIP("127.0.0.1"); ip != nil {
		template.IPAddresses = append(template.IPAddresses, ip)
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	Expect(err).ToNot(HaveOccurred())

	bufPub := bytes.NewBuffer(nil)
	Expect(pem.Encode(bufPub, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes})).ToNot(HaveOccurred())

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	Expect(err).ToNot(HaveOccurred())

	bufKey := bytes.NewBuffer(nil)
	Expect(pem.Encode(bufKey, &pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})).ToNot(HaveOccurred())

	return bufPub.Bytes(), bufKey.Bytes()
}

func writeGenCert(pub, key string) {
	p, k := genCertificate()

	Expect(os.WriteFile(pub, p, 0o600)).ToNot(HaveOccurred())
	Expect(os.WriteFile(key, k, 0o600)).ToNot(HaveOccurred())
}

var _ = Describe("TLSConfig", func() {
	It("starts empty", func() {
		cnf := libtls.New()
		Expect(cnf.LenCertificatePair()).To(Equal(0))
	})

	It("loads a certificate pair from PEM strings", func() {
		pub, key := genCertificate()

		cnf := libtls.New()
		Expect(cnf.AddCertificatePairString(string(key), string(pub))).To(BeNil())
		Expect(cnf.LenCertificatePair()).To(Equal(1))
	})

	It("loads a certificate pair from files and renders a tls.Config", func() {
		writeGenCert(pubFile, keyFile)

		cnf := libtls.New()
		Expect(cnf.AddCertificatePairFile(keyFile, pubFile)).To(BeNil())
		Expect(cnf.LenCertificatePair()).To(Equal(1))

		cnf.SetCipherList([]uint16{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256})
		cnf.SetCurveList([]tls.CurveID{tls.X25519})

		tlsCnf := cnf.TlsConfig("localhost")
		Expect(tlsCnf).ToNot(BeNil())
		Expect(tlsCnf.ServerName).To(Equal("localhost"))
		Expect(tlsCnf.Certificates).To(HaveLen(1))
		Expect(tlsCnf.CipherSuites).To(Equal([]uint16{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256}))
		Expect(tlsCnf.CurvePreferences).To(Equal([]tls.CurveID{tls.X25519}))
	})

	It("rejects a missing certificate file", func() {
		cnf := libtls.New()
		Expect(cnf.AddCertificatePairFile("/nonexistent.key", "/nonexistent.crt")).ToNot(BeNil())
	})

	It("requires client certificates once ClientAuth is set", func() {
		cnf := libtls.New()
		cnf.SetClientAuth(tls.RequireAndVerifyClientCert)

		tlsCnf := cnf.TlsConfig("")
		Expect(tlsCnf.ClientAuth).To(Equal(tls.RequireAndVerifyClientCert))
	})

	It("clones independently of the source", func() {
		cnf := libtls.New()
		Expect(cnf.AddCertificatePairString(func() (string, string) {
			pub, key := genCertificate()
			return string(key), string(pub)
		}())).To(BeNil())

		clone := cnf.Clone()
		clone.CleanCertificatePair()

		Expect(clone.LenCertificatePair()).To(Equal(0))
		Expect(cnf.LenCertificatePair()).To(Equal(1))
	})
})
