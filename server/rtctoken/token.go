package rtctoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AgoraIO-Community/go-tokenbuilder/rtctokenbuilder"
	"github.com/google/uuid"
)

const DefaultValidity = 120 * time.Second

var (
	ErrNotConfigured = errors.New("rtc token service not configured")
	ErrInvalidRole   = errors.New("invalid role")
	ErrEmptyChannel  = errors.New("empty channel name")
)

type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// ParseRole maps the role names clients send onto the two capabilities.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "publisher", "host", "broadcaster":
		return RolePublisher, nil
	case "subscriber", "audience", "viewer":
		return RoleSubscriber, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

func (r Role) agoraRole() (rtctokenbuilder.Role, error) {
	switch r {
	case RolePublisher:
		return rtctokenbuilder.RolePublisher, nil
	case RoleSubscriber:
		return rtctokenbuilder.RoleSubscriber, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, r)
}

type Token struct {
	Token     string
	UID       uint32
	ExpiresAt time.Time
}

// Issuer hands out media credentials for a channel. The registry does not
// know about it.
type Issuer interface {
	IssueToken(channel string, role Role, uid uint32) (*Token, error)
}

type Config struct {
	AppID          string
	AppCertificate string
	Validity       time.Duration
}

// AgoraIssuer builds Agora RTC access tokens keyed by the project's app id
// and app certificate.
type AgoraIssuer struct {
	conf Config
	now  func() time.Time
}

func NewAgoraIssuer(conf Config) *AgoraIssuer {
	if conf.Validity <= 0 {
		conf.Validity = DefaultValidity
	}
	return &AgoraIssuer{conf: conf, now: time.Now}
}

func (t *AgoraIssuer) Configured() bool {
	return t.conf.AppID != "" && t.conf.AppCertificate != ""
}

// IssueToken builds a token for uid on channel whose privileges lapse after
// the configured validity. A zero uid is replaced by a random non-zero one.
func (t *AgoraIssuer) IssueToken(channel string, role Role, uid uint32) (*Token, error) {
	if !t.Configured() {
		return nil, ErrNotConfigured
	}
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	agoraRole, err := role.agoraRole()
	if err != nil {
		return nil, err
	}
	for uid == 0 {
		uid = uuid.New().ID()
	}

	expires := t.now().Add(t.conf.Validity).Truncate(time.Second)
	tok, err := rtctokenbuilder.BuildTokenWithUID(t.conf.AppID, t.conf.AppCertificate, channel, uid, agoraRole, uint32(expires.Unix()))
	if err != nil {
		return nil, fmt.Errorf("build rtc token: %w", err)
	}
	return &Token{Token: tok, UID: uid, ExpiresAt: expires}, nil
}
