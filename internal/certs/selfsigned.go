package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/spf13/afero"

	"esp32-testserver/internal/fileutil"
	"esp32-testserver/internal/logger"
)

const (
	filePerm = 0644
	keyPerm  = 0600
)

// Validity of generated certificates
const Validity = 365 * 24 * time.Hour

// Paths locates a PEM key pair on a filesystem.
type Paths struct {
	Fs       afero.Fs
	CertPath string
	KeyPath  string
}

// EnsureSelfSigned generates a self-signed certificate for hosts unless a key
// pair already exists at p. It reports whether a new pair was written.
func EnsureSelfSigned(p Paths, hosts []string) (bool, error) {
	exists, err := fileutil.Exists(p.Fs, p.CertPath, p.KeyPath)
	if err != nil {
		return false, err
	}
	if exists {
		logger.Debugf("Reusing existing certificate at %s", p.CertPath)
		return false, nil
	}
	if err := GenerateSelfSigned(p, hosts); err != nil {
		return false, err
	}
	return true, nil
}

// GenerateSelfSigned creates a self-signed certificate for hosts. Entries that
// parse as IP addresses go into the IP SANs; loopback addresses are always
// included.
func GenerateSelfSigned(p Paths, hosts []string) error {
	logger.Debugf("Generating self-signed certificate for: %v", hosts)

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generating private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generating serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"ESP32 Test Server"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(Validity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	for _, h := range hosts {
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			if !ip.IsLoopback() {
				template.IPAddresses = append(template.IPAddresses, ip)
			}
			continue
		}
		template.DNSNames = append(template.DNSNames, h)
	}
	if len(template.DNSNames) > 0 {
		template.Subject.CommonName = template.DNSNames[0]
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("creating certificate: %w", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("marshaling private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	// Key first: the certificate appearing is what watchers react to.
	if err := fileutil.WriteAtomicFile(p.Fs, p.KeyPath, keyPEM, keyPerm); err != nil {
		return fmt.Errorf("saving private key: %w", err)
	}
	if err := fileutil.WriteAtomicFile(p.Fs, p.CertPath, certPEM, filePerm); err != nil {
		return fmt.Errorf("saving certificate: %w", err)
	}

	logger.Infof("Self-signed certificate written to %s (valid until %s)", p.CertPath, template.NotAfter.Format(time.DateOnly))
	return nil
}

// ParseCertificate decodes the first PEM certificate in data.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no PEM certificate found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}
	return cert, nil
}

// NeedsRenewal reports whether the certificate at p is missing, unreadable,
// not valid for domain, or expires within renewBefore.
func NeedsRenewal(p Paths, domain string, renewBefore time.Duration) bool {
	data, err := afero.ReadFile(p.Fs, p.CertPath)
	if err != nil {
		logger.Debugf("Certificate %s not readable, needs to be obtained: %v", p.CertPath, err)
		return true
	}

	cert, err := ParseCertificate(data)
	if err != nil {
		logger.Debugf("Certificate %s invalid, needs renewal: %v", p.CertPath, err)
		return true
	}

	if err := cert.VerifyHostname(domain); err != nil {
		logger.Debugf("Certificate is not valid for domain %s: %v", domain, err)
		return true
	}

	remaining := time.Until(cert.NotAfter)
	logger.Debugf("Certificate for %s expires in %d days", domain, int(remaining.Hours()/24))
	return remaining <= renewBefore
}
