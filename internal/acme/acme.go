package acme

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"

	"esp32-testserver/internal/certs"
	"esp32-testserver/internal/config"
	"esp32-testserver/internal/fileutil"
	"esp32-testserver/internal/logger"
)

const (
	filePerm = 0644
	keyPerm  = 0600

	letsEncryptProduction = "https://acme-v02.api.letsencrypt.org/directory"
	letsEncryptStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"

	// RenewalInterval is how often the certificate is checked for renewal.
	RenewalInterval = 24 * time.Hour
)

// obtainer is the part of lego's certifier the client uses.
type obtainer interface {
	Obtain(request certificate.ObtainRequest) (*certificate.Resource, error)
}

// Client obtains and renews the server certificate from an ACME CA
type Client struct {
	config   *config.Config
	paths    certs.Paths
	user     *User
	obtainer obtainer
}

// User implements the registration.User interface
type User struct {
	Email        string
	Registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *User) GetEmail() string {
	return u.Email
}

func (u *User) GetRegistration() *registration.Resource {
	return u.Registration
}

func (u *User) GetPrivateKey() crypto.PrivateKey {
	return u.key
}

// DirectoryURL returns the ACME directory selected by the configuration.
func DirectoryURL(cfg *config.Config) string {
	if cfg.ACMEDirectoryURL != "" {
		return cfg.ACMEDirectoryURL
	}
	if cfg.ACMEStaging {
		return letsEncryptStaging
	}
	return letsEncryptProduction
}

// NewClient registers an account with the CA and answers HTTP-01 challenges
// through store.
func NewClient(cfg *config.Config, paths certs.Paths, store *ChallengeStore) (*Client, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}

	user := &User{
		Email: cfg.ACMEEmail,
		key:   privateKey,
	}

	legoConfig := lego.NewConfig(user)
	legoConfig.CADirURL = DirectoryURL(cfg)
	legoConfig.Certificate.KeyType = certcrypto.EC256

	client, err := lego.NewClient(legoConfig)
	if err != nil {
		return nil, fmt.Errorf("creating ACME client: %w", err)
	}

	if err := client.Challenge.SetHTTP01Provider(store); err != nil {
		return nil, fmt.Errorf("setting HTTP-01 provider: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("registering user: %w", err)
	}
	user.Registration = reg
	logger.Infof("Registered ACME account with %s", legoConfig.CADirURL)

	return &Client{
		config:   cfg,
		paths:    paths,
		user:     user,
		obtainer: client.Certificate,
	}, nil
}

func (c *Client) renewBefore() time.Duration {
	return time.Duration(c.config.ACMERenewalDays) * 24 * time.Hour
}

// EnsureCertificate obtains a certificate unless a valid one that is not due
// for renewal is already on disk.
func (c *Client) EnsureCertificate(ctx context.Context) error {
	if !certs.NeedsRenewal(c.paths, c.config.Domain, c.renewBefore()) {
		logger.Debugf("Certificate for %s is valid and not due for renewal", c.config.Domain)
		return nil
	}
	return c.ObtainCertificate(ctx)
}

// ObtainCertificate requests a new certificate for the configured domain and
// writes it to the configured paths.
func (c *Client) ObtainCertificate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Infof("Obtaining certificate for %s", c.config.Domain)
	resource, err := c.obtainer.Obtain(certificate.ObtainRequest{
		Domains: []string{c.config.Domain},
		Bundle:  true,
	})
	if err != nil {
		return fmt.Errorf("obtaining certificate for %s: %w", c.config.Domain, err)
	}

	// Key first: the certificate appearing is what watchers react to.
	if err := fileutil.WriteAtomicFile(c.paths.Fs, c.paths.KeyPath, resource.PrivateKey, keyPerm); err != nil {
		return fmt.Errorf("saving private key: %w", err)
	}
	if err := fileutil.WriteAtomicFile(c.paths.Fs, c.paths.CertPath, resource.Certificate, filePerm); err != nil {
		return fmt.Errorf("saving certificate: %w", err)
	}

	logger.Infof("Certificate for %s saved to %s", c.config.Domain, c.paths.CertPath)
	return nil
}

// RunRenewal checks the certificate every interval until ctx is done.
func (c *Client) RunRenewal(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debugf("Certificate renewal checker stopping")
			return
		case <-ticker.C:
			if err := c.EnsureCertificate(ctx); err != nil {
				logger.Errorf("Certificate renewal failed: %v", err)
			}
		}
	}
}
