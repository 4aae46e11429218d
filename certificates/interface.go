/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package certificates loads server certificate/key pairs and root/client CA
// bundles and builds the *tls.Config a TLS front listens with.
package certificates

import (
	"crypto/tls"
	"crypto/x509"

	liberr "github.com/flowgate/flowgate/errors"
)

// TLSConfig accumulates the certificate material and TLS policy for one
// listening front and renders it into a stdlib *tls.Config on demand.
type TLSConfig interface {
	AddRootCAString(rootCA string) bool
	AddRootCAFile(pemFile string) liberr.Error
	AddClientCAString(ca string) bool
	AddClientCAFile(pemFile string) liberr.Error
	AddCertificatePairString(key, crt string) liberr.Error
	AddCertificatePairFile(keyFile, crtFile string) liberr.Error
	LenCertificatePair() int
	CleanCertificatePair()
	GetCertificatePair() []tls.Certificate
	GetRootCA() *x509.CertPool
	GetClientCA() *x509.CertPool
	SetVersionMin(vers uint16)
	SetVersionMax(vers uint16)
	SetClientAuth(cAuth tls.ClientAuthType)
	SetCipherList(cipher []uint16)
	SetCurveList(curves []tls.CurveID)
	SetDynamicSizingDisabled(flag bool)
	SetSessionTicketDisabled(flag bool)
	Clone() TLSConfig
	TlsConfig(serverName string) *tls.Config
}

// New returns a TLSConfig with no certificates loaded and TLS 1.2-1.3 as the
// default version range.
func New() TLSConfig {
	return &config{
		clientAuth:    tls.NoClientCert,
		tlsMinVersion: tls.VersionTLS12,
		tlsMaxVersion: tls.VersionTLS13,
	}
}
