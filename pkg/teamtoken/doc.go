// Package teamtoken manages per-team shared secrets.
//
// A team token is a 7-character case-sensitive alphanumeric string that
// binds an API client to a team independent of any individual user identity.
// Tokens are insert-only: generating a new token for a team supersedes all
// older rows for that team the instant the new row lands, and old rows are
// retained as an audit trail. Only the row with the newest created_at per
// team is ever valid for authentication.
//
// Generation:
//
//	store := teamtoken.NewStore(db, metrics)
//	token, err := store.Generate(ctx, teamID)
//
// Validation:
//
//	teamID, err := store.Validate(ctx, presented)
//	if errors.Is(err, teamtoken.ErrInvalidToken) {
//		// unknown or superseded token
//	}
//
// Concurrent Generate calls for the same team race on created_at ordering;
// latest-by-timestamp wins. Same-millisecond ties are resolved only by
// incidental query ordering. This race is accepted, not defended against.
package teamtoken
