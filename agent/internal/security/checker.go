package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/shotspool/shotspool/agent/internal/config"
)

// ExpiringWithin is the window in which a valid certificate is reported as
// "expiring".
const ExpiringWithin = 30 * 24 * time.Hour

// CertStatus describes the collector's leaf certificate.
type CertStatus struct {
	Endpoint string    `json:"endpoint"`
	AuthType string    `json:"auth_type"`
	Status   string    `json:"status"` // valid | expiring | expired | unreachable
	DaysLeft int       `json:"days_left"`
	Issuer   string    `json:"issuer,omitempty"`
	Subject  string    `json:"subject,omitempty"`
	NotAfter time.Time `json:"not_after,omitempty"`
}

// Check dials the collector's TLS endpoint and returns a CertStatus for the
// leaf certificate.
//
// Returns nil for non-HTTPS collector URLs; there is no certificate to
// inspect. Uses a 10-second dial timeout so a slow host does not hold up
// startup.
func Check(ctx context.Context, cfg config.AgentConfig) *CertStatus {
	return check(ctx, cfg, time.Now())
}

func check(ctx context.Context, cfg config.AgentConfig, now time.Time) *CertStatus {
	u, err := url.Parse(cfg.CollectorURL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{
		Endpoint: cfg.CollectorURL,
		AuthType: cfg.Auth.Mode,
	}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			// Expired certificates must still be inspected.
			InsecureSkipVerify: true, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = "unreachable"
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = "unreachable"
		return cs
	}

	leaf := peerCerts[0]
	left := leaf.NotAfter.Sub(now)

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.Subject = leaf.Subject.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))

	switch {
	case left <= 0:
		cs.Status = "expired"
	case left <= ExpiringWithin:
		cs.Status = "expiring"
	default:
		cs.Status = "valid"
	}
	return cs
}
