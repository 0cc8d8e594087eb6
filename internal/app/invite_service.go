package app

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

// InviteService issues and verifies signed game invite tokens. An invite
// names a match and optionally reserves a seat, so a link holder can join a
// private table without the match id being guessable from the lobby listing.
type InviteService struct {
	secret string
	issuer string
	ttl    time.Duration
}

// Invite is the verified content of an invite token.
type Invite struct {
	Inviter  string
	MatchID  string
	SeatHint int // -1 when the invite does not reserve a seat
}

// DefaultInviteTTL bounds how long an invite link stays redeemable.
const DefaultInviteTTL = 24 * time.Hour

func NewInviteService(secret, issuer string, ttl time.Duration) *InviteService {
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	return &InviteService{secret: secret, issuer: issuer, ttl: ttl}
}

// GenerateToken signs an invite from the inviter to the given match.
// seatHint below zero means any open seat.
func (s *InviteService) GenerateToken(inviter, matchID string, seatHint int) (string, error) {
	if s == nil {
		return "", fmt.Errorf("invite service is nil")
	}
	if inviter == "" {
		return "", fmt.Errorf("inviter is required")
	}
	if matchID == "" {
		return "", fmt.Errorf("match id is required")
	}
	if s.secret == "" || s.issuer == "" {
		return "", fmt.Errorf("invite config is incomplete")
	}
	if seatHint < 0 {
		seatHint = -1
	}

	claims := jwt.MapClaims{
		"iss":  s.issuer,
		"sub":  inviter,
		"exp":  time.Now().Add(s.ttl).Unix(),
		"mid":  matchID,
		"seat": seatHint,
		"jti":  fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.Int63()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// VerifyToken checks the signature, issuer and expiry, returning the invite.
func (s *InviteService) VerifyToken(tokenString string) (Invite, error) {
	if s == nil {
		return Invite{}, fmt.Errorf("invite service is nil")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return Invite{}, fmt.Errorf("parse invite token: %w", err)
	}
	if !token.Valid {
		return Invite{}, fmt.Errorf("invite token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Invite{}, fmt.Errorf("invite claims have unexpected shape")
	}
	if issuer, _ := claims["iss"].(string); issuer != s.issuer {
		return Invite{}, fmt.Errorf("invite token issued by %q", issuer)
	}

	matchID, _ := claims["mid"].(string)
	if matchID == "" {
		return Invite{}, fmt.Errorf("invite token has no match id")
	}
	inviter, _ := claims["sub"].(string)

	seatHint := -1
	if raw, ok := claims["seat"].(float64); ok {
		seatHint = int(raw)
	}

	return Invite{Inviter: inviter, MatchID: matchID, SeatHint: seatHint}, nil
}
