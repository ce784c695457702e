package envgate

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// TLS is the dev server configuration discovered from the environment.
type TLS struct {
	Host string // from APP_URL
	Cert []byte // PEM certificate chain
	Key  []byte // PEM private key
}

// Certificate parses the discovered key pair.
func (t *TLS) Certificate() (tls.Certificate, error) {
	return tls.X509KeyPair(t.Cert, t.Key)
}

// Config returns a TLS server configuration that serves the discovered certificate.
func (t *TLS) Config() (*tls.Config, error) {
	cert, err := t.Certificate()
	if err != nil {
		return nil, fmt.Errorf(`%w while parsing %s and %s`, err, VarServerCert, VarServerKey)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// A TLSError describes why TLS discovery failed.
type TLSError struct {
	Missing []string // certificate paths that do not exist, or the unset variable
	AppURL  string   // set when the host could not be parsed from APP_URL
}

func (e *TLSError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf(`unable to find the certificate files specified in your environment, `+
			`ensure you have correctly configured %s and %s: missing [%s]`,
			VarServerKey, VarServerCert, strings.Join(e.Missing, `, `))
	}
	return fmt.Sprintf(`unable to determine the host from the environment's %s: [%s]`, VarAppURL, e.AppURL)
}

// DiscoverTLS reads VITE_DEV_SERVER_KEY, VITE_DEV_SERVER_CERT and APP_URL.  It returns nil without an error if
// neither certificate variable is set.  If either is set, both files must exist and APP_URL must have a host.
func DiscoverTLS(env Env) (*TLS, error) {
	keyPath, certPath := env.Get(VarServerKey), env.Get(VarServerCert)
	if keyPath == `` && certPath == `` {
		return nil, nil
	}

	var missing []string
	for _, v := range [...]struct{ name, path string }{{VarServerKey, keyPath}, {VarServerCert, certPath}} {
		switch {
		case v.path == ``:
			missing = append(missing, v.name+` (unset)`)
		case !fileExists(v.path):
			missing = append(missing, v.path)
		}
	}
	if len(missing) > 0 {
		return nil, &TLSError{Missing: missing}
	}

	host := hostFromURL(env.Get(VarAppURL))
	if host == `` {
		return nil, &TLSError{AppURL: env.Get(VarAppURL)}
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	cert, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	return &TLS{Host: host, Cert: cert, Key: key}, nil
}

func fileExists(path string) bool {
	if path == `` {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func hostFromURL(raw string) string {
	if raw == `` {
		return ``
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ``
	}
	return u.Hostname()
}
