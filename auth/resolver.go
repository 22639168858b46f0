package auth

import (
	"fmt"
	"strings"
)

const bearerPrefix = "Bearer "

// ErrUnauthorized is returned when the Authorization header is missing a
// bearer token or the token is not known to the resolver.
var ErrUnauthorized = fmt.Errorf("unauthorized")

// Resolver maps the raw Authorization header of an incoming request to a
// user ID.
type Resolver interface {
	Resolve(authorization string) (string, error)
}

// StaticResolver resolves bearer tokens against a fixed token -> user ID
// mapping. It performs no I/O.
type StaticResolver struct {
	tokens map[string]string
}

func NewStaticResolver(tokens map[string]string) *StaticResolver {
	return &StaticResolver{tokens: tokens}
}

// Resolve accepts only headers of the form "Bearer <token>". An empty token
// after the prefix is just another unknown token, not a missing header.
func (r *StaticResolver) Resolve(authorization string) (string, error) {
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return "", ErrUnauthorized
	}
	token := authorization[len(bearerPrefix):]
	userID, ok := r.tokens[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// ParseMappings parses "token:userID" pairs from the command line into the
// mapping consumed by NewStaticResolver.
func ParseMappings(pairs []string) (map[string]string, error) {
	tokens := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		token, userID, found := strings.Cut(pair, ":")
		if !found || token == "" || userID == "" {
			return nil, fmt.Errorf("invalid token mapping %q, expected token:userID", pair)
		}
		if existing, ok := tokens[token]; ok && existing != userID {
			return nil, fmt.Errorf("token mapped to both %q and %q", existing, userID)
		}
		tokens[token] = userID
	}
	return tokens, nil
}

// UserIDs returns the distinct user IDs of a token mapping, for seeding the
// usage store.
func UserIDs(tokens map[string]string) []string {
	seen := make(map[string]struct{}, len(tokens))
	userIDs := make([]string, 0, len(tokens))
	for _, userID := range tokens {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		userIDs = append(userIDs, userID)
	}
	return userIDs
}
