package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rating is the risk category of a loan. The set is closed.
type Rating string

const (
	RatingAAAAA Rating = "AAAAA"
	RatingAAAA  Rating = "AAAA"
	RatingAAA   Rating = "AAA"
	RatingAA    Rating = "AA"
	RatingA     Rating = "A"
	RatingB     Rating = "B"
	RatingC     Rating = "C"
	RatingD     Rating = "D"
)

var allRatings = []Rating{
	RatingAAAAA, RatingAAAA, RatingAAA, RatingAA,
	RatingA, RatingB, RatingC, RatingD,
}

// expected annual interest rate per rating
var ratingInterest = map[Rating]decimal.Decimal{
	RatingAAAAA: decimal.RequireFromString("0.0399"),
	RatingAAAA:  decimal.RequireFromString("0.0499"),
	RatingAAA:   decimal.RequireFromString("0.0599"),
	RatingAA:    decimal.RequireFromString("0.0849"),
	RatingA:     decimal.RequireFromString("0.1099"),
	RatingB:     decimal.RequireFromString("0.1349"),
	RatingC:     decimal.RequireFromString("0.1549"),
	RatingD:     decimal.RequireFromString("0.1999"),
}

// Ratings returns every rating, safest first.
func Ratings() []Rating {
	out := make([]Rating, len(allRatings))
	copy(out, allRatings)
	return out
}

// ParseRating validates a rating code.
func ParseRating(code string) (Rating, error) {
	r := Rating(code)
	if !r.Valid() {
		return "", fmt.Errorf("unknown rating %q: %w", code, ErrInvariant)
	}
	return r, nil
}

// Valid reports whether r is part of the enumeration.
func (r Rating) Valid() bool {
	_, ok := ratingInterest[r]
	return ok
}

// InterestRate is the expected annual interest rate for the rating.
func (r Rating) InterestRate() decimal.Decimal {
	return ratingInterest[r]
}

// Index is the position of r in Ratings(), or -1.
func (r Rating) Index() int {
	for i, x := range allRatings {
		if x == r {
			return i
		}
	}
	return -1
}

// Compare orders ratings from safest to riskiest.
// Comparing against an unknown rating is a contract violation.
func (r Rating) Compare(o Rating) (int, error) {
	a, b := r.Index(), o.Index()
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("cannot compare ratings %q and %q: %w", r, o, ErrInvariant)
	}
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	}
	return 0, nil
}

func (r Rating) String() string {
	return string(r)
}

// UnmarshalText validates while decoding.
func (r *Rating) UnmarshalText(text []byte) error {
	parsed, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
