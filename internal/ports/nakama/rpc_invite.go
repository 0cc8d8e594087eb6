package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"nobledynasty/internal/app"
	"nobledynasty/internal/config"

	"github.com/heroiclabs/nakama-common/runtime"
)

// CreateInviteRequest asks for a signed invite to the caller's match.
type CreateInviteRequest struct {
	MatchID  string `json:"match_id"`
	SeatHint int    `json:"seat_hint"`
}

// CreateInviteResponse returns the signed invite token.
type CreateInviteResponse struct {
	Token string `json:"token"`
}

// RedeemInviteRequest resolves an invite token back to its match.
type RedeemInviteRequest struct {
	Token string `json:"token"`
}

// RedeemInviteResponse names the match the invite points at.
type RedeemInviteResponse struct {
	MatchID  string `json:"match_id"`
	Inviter  string `json:"inviter"`
	SeatHint int    `json:"seat_hint"`
}

// inviteServiceFromEnv builds the invite service from the runtime env, falling
// back to the loaded game config. A missing secret disables invites.
func inviteServiceFromEnv(ctx context.Context) *app.InviteService {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	secret := env["nobledynasty_invite_secret"]
	issuer := env["nobledynasty_invite_issuer"]
	if cfg := config.GetGameConfig(); cfg != nil {
		if secret == "" {
			secret = cfg.InviteSecret
		}
		if issuer == "" {
			issuer = cfg.InviteIssuer
		}
	}
	if issuer == "" {
		issuer = "nobledynasty"
	}
	if secret == "" {
		return nil
	}
	return app.NewInviteService(secret, issuer, 0)
}

func rpcCreateInvite(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("No user ID in context", 16) // UNAUTHENTICATED
	}

	var req CreateInviteRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("Invalid payload", 3) // INVALID_ARGUMENT
	}
	if req.MatchID == "" {
		return "", runtime.NewError("match_id is required", 3)
	}

	svc := inviteServiceFromEnv(ctx)
	if svc == nil {
		return "", runtime.NewError("Invites are not configured", 9) // FAILED_PRECONDITION
	}

	token, err := svc.GenerateToken(userID, req.MatchID, req.SeatHint)
	if err != nil {
		logger.Error("rpcCreateInvite: %v", err)
		return "", runtime.NewError("Failed to create invite", 13) // INTERNAL
	}

	b, _ := json.Marshal(CreateInviteResponse{Token: token})
	return string(b), nil
}

func rpcRedeemInvite(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req RedeemInviteRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("Invalid payload", 3) // INVALID_ARGUMENT
	}
	if req.Token == "" {
		return "", runtime.NewError("token is required", 3)
	}

	svc := inviteServiceFromEnv(ctx)
	if svc == nil {
		return "", runtime.NewError("Invites are not configured", 9) // FAILED_PRECONDITION
	}

	invite, err := svc.VerifyToken(req.Token)
	if err != nil {
		logger.Warn("rpcRedeemInvite: rejected token: %v", err)
		return "", runtime.NewError("Invalid or expired invite", 7) // PERMISSION_DENIED
	}

	b, _ := json.Marshal(RedeemInviteResponse{
		MatchID:  invite.MatchID,
		Inviter:  invite.Inviter,
		SeatHint: invite.SeatHint,
	})
	return string(b), nil
}
