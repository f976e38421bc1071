package fingerprint

import (
	"strconv"
	"strings"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// DefaultDelimiter separates position tokens in an EncodedQuery.
const DefaultDelimiter = " "

// EncodedQuery is the textual form of a fingerprint: the decimal positions in
// ascending order joined by a delimiter, plus the number of set bits.
type EncodedQuery struct {
	Tokens string `json:"tokens"`
	Count  int    `json:"count"`
}

// Token maps a bit position to its index term. Index documents and queries
// must both go through this function.
func Token(pos int) string {
	return strconv.Itoa(pos)
}

// Terms returns one token per set bit of fp, ascending. A nil fp has no terms.
func Terms(fp *Fingerprint) []string {
	if fp == nil {
		return nil
	}
	positions := fp.Positions()
	terms := make([]string, len(positions))
	for i, p := range positions {
		terms[i] = Token(p)
	}
	return terms
}

// Encode renders fp as an EncodedQuery. An empty or nil fingerprint yields an
// empty token string and a zero count.
func Encode(fp *Fingerprint, delimiter string) EncodedQuery {
	if fp == nil {
		return EncodedQuery{}
	}
	var sb strings.Builder
	count := 0
	for i, ok := fp.bits.NextSet(0); ok; i, ok = fp.bits.NextSet(i + 1) {
		if count > 0 {
			sb.WriteString(delimiter)
		}
		sb.WriteString(Token(int(i)))
		count++
	}
	return EncodedQuery{Tokens: sb.String(), Count: count}
}

// ValidateDelimiter rejects delimiters that could occur inside a token.
func ValidateDelimiter(delimiter string) error {
	if delimiter == "" {
		return errors.New(errors.CodeEncodingFailed, "delimiter must not be empty")
	}
	if strings.ContainsAny(delimiter, "0123456789-+") {
		return errors.New(errors.CodeEncodingFailed, "delimiter must not contain digits or signs").
			WithDetailf("delimiter=%q", delimiter)
	}
	return nil
}

// DecodeTokens parses a delimiter-joined token string into a fingerprint of
// length numBits.
func DecodeTokens(tokens, delimiter string, numBits int) (*Fingerprint, error) {
	if err := ValidateDelimiter(delimiter); err != nil {
		return nil, err
	}
	if numBits <= 0 {
		return nil, errors.New(errors.CodeEncodingFailed, "numBits must be positive").WithDetailf("numBits=%d", numBits)
	}
	fp := New(numBits)
	if tokens == "" {
		return fp, nil
	}
	for _, tok := range strings.Split(tokens, delimiter) {
		pos, err := strconv.Atoi(tok)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeEncodingFailed, "malformed position token").WithDetailf("token=%q", tok)
		}
		if pos < 0 || pos >= numBits {
			return nil, errors.New(errors.CodeEncodingFailed, "position token out of range").
				WithDetailf("token=%d numBits=%d", pos, numBits)
		}
		fp.bits.Set(uint(pos))
	}
	return fp, nil
}

// Decode is the inverse of Encode. The decoded cardinality must match q.Count.
func Decode(q EncodedQuery, delimiter string, numBits int) (*Fingerprint, error) {
	fp, err := DecodeTokens(q.Tokens, delimiter, numBits)
	if err != nil {
		return nil, err
	}
	if fp.Cardinality() != q.Count {
		return nil, errors.New(errors.CodeEncodingFailed, "token count mismatch").
			WithDetailf("declared=%d decoded=%d", q.Count, fp.Cardinality())
	}
	return fp, nil
}
