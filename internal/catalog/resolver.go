package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/parcelops/backend/pkg/errors"
)

// Match is one resolved (product, quantity) pair from a free-text line.
type Match struct {
	ProductID uuid.UUID
	Quantity  int
}

// Resolver maps a free-text order description to zero or more product
// matches. Implementations may be as simple or as fuzzy as they like; callers
// never retry or second-guess the output, and zero matches is an expected
// outcome, not an error.
type Resolver interface {
	Resolve(ctx context.Context, description string) ([]Match, error)
}

// NameResolver is the default resolver: it splits the description on commas,
// parses an optional "Nx " quantity prefix from each part, and looks the rest
// up as an exact (case-insensitive) product name. Parts that match nothing
// are dropped.
type NameResolver struct {
	repo Repository
}

// NewNameResolver constructs the exact-name resolver.
func NewNameResolver(repo Repository) (*NameResolver, error) {
	if repo == nil {
		return nil, errors.New("catalog repository required")
	}
	return &NameResolver{repo: repo}, nil
}

// Resolve implements Resolver.
func (r *NameResolver) Resolve(ctx context.Context, description string) ([]Match, error) {
	var matches []Match
	for _, part := range strings.Split(description, ",") {
		qty, name := splitQuantityPrefix(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		product, err := r.repo.FindProductByName(ctx, name)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up product name")
		}
		matches = append(matches, Match{ProductID: product.ID, Quantity: qty})
	}
	return matches, nil
}

// splitQuantityPrefix peels a leading "3x " or "3 x " quantity off the line.
// Absent or malformed prefixes mean quantity 1.
func splitQuantityPrefix(line string) (int, string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 1, ""
	}

	head := strings.ToLower(fields[0])
	if strings.HasSuffix(head, "x") {
		if qty, err := strconv.Atoi(strings.TrimSuffix(head, "x")); err == nil && qty > 0 {
			return qty, strings.Join(fields[1:], " ")
		}
	}
	if len(fields) >= 3 && strings.ToLower(fields[1]) == "x" {
		if qty, err := strconv.Atoi(fields[0]); err == nil && qty > 0 {
			return qty, strings.Join(fields[2:], " ")
		}
	}
	return 1, line
}
