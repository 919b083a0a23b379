package bridge

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// VerdictKind is the outcome of a join check.
type VerdictKind int

const (
	VerdictAllow VerdictKind = iota
	VerdictDeny
	VerdictPending
)

const (
	MessageTimedOut    = "You are currently timed out on Discord."
	MessageUnavailable = CodeUnavailable + " cannot generate new code"

	codePrefix   = "Use code "
	codeLength   = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Verdict is returned to the host's join hook.
type Verdict struct {
	Kind VerdictKind
	// Message is the text shown to a refused player.
	Message string
	// Code is the link code for pending verdicts.
	Code string
}

func (v Verdict) Allowed() bool {
	return v.Kind == VerdictAllow
}

func allow() Verdict { return Verdict{Kind: VerdictAllow} }

func deny(msg string) Verdict { return Verdict{Kind: VerdictDeny, Message: msg} }

func pendingCode(code string) Verdict {
	return Verdict{Kind: VerdictPending, Message: codePrefix + code, Code: code}
}

// JoinMessage renders the disconnect screen text for a refused join.
func JoinMessage(v Verdict) string {
	switch v.Kind {
	case VerdictPending:
		return "You need to authenticate your account in Discord\n\n" +
			codePrefix + v.Code + " in the pinned message in the #mc-talk channel."
	case VerdictDeny:
		return v.Message
	default:
		return ""
	}
}

// CheckAuthentication decides whether id may join. It is called from the
// host's join hook and never waits on the network: the verdict comes from the
// mirrored remote config, and a new link code is pushed upstream without
// waiting for an answer.
func (b *Bridge) CheckAuthentication(id uuid.UUID) Verdict {
	available := b.AuthAvailable()
	if !available {
		b.session.Reconnect()
	}

	var verdict Verdict
	err := b.mirror.Update(func(cfg *RemoteConfig) (*RemoteConfig, error) {
		if cfg.Has(SectionLinked, id) {
			if cfg.Has(SectionTimedOut, id) {
				verdict = deny(MessageTimedOut)
				return nil, nil
			}
			if cfg.Has(SectionModerators, id) {
				b.setOpIntent(id, true)
			}
			verdict = allow()
			return nil, nil
		}

		if code, ok := cfg.PendingCode(id); ok {
			verdict = pendingCode(code)
			return nil, nil
		}

		if !available {
			verdict = deny(MessageUnavailable)
			return nil, nil
		}

		code, err := b.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		next := cfg.WithPending(id, code)
		if err := b.session.Send(NewConfigUpdate(next)); err != nil {
			return nil, fmt.Errorf("push pending code: %w", err)
		}
		verdict = pendingCode(code)
		return next, nil
	})
	if err != nil {
		b.logger.Warn("cannot issue link code", "uuid", id, "error", err)
		return deny(MessageUnavailable)
	}
	return verdict
}

// GenerateCode returns a random link code without look-alike characters.
func GenerateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range buf {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}
