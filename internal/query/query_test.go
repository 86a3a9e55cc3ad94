package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

func TestParse(t *testing.T) {
	q, err := Parse("a=E.+F.+Codd&t=relational%20model&y=1971")
	require.NoError(t, err)
	assert.Equal(t, Query{"a": "E. F. Codd", "t": "relational model", "y": "1971"}, q)
	assert.False(t, q.IsCount())
	assert.Equal(t, []string{"a", "t", "y"}, q.Codes())
}

func TestParseFreeText(t *testing.T) {
	q, err := Parse("  Codd. A relational model of data for large shared data banks. CACM 1970 ")
	require.NoError(t, err)
	assert.Equal(t, Query{Free: "Codd. A relational model of data for large shared data banks. CACM 1970"}, q)
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, raw)
	}
}

func TestParseCitationWithSeparatorsStaysFree(t *testing.T) {
	for _, raw := range []string{
		"Codd, E. F. & Date, C. J.: x=y relations; 1974",
		"a=%zz",
		"a=x;y",
		"t=relational model & Codd",
		"A=Codd",
		"author_name=Codd",
		"a=Codd&&t=model",
	} {
		q, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, Query{Free: raw}, q, raw)
	}
}

func TestParseEmptyFieldValue(t *testing.T) {
	q, err := Parse("a=&t=model")
	require.NoError(t, err)
	assert.Equal(t, Query{"a": "", "t": "model"}, q)
}

func TestIsCount(t *testing.T) {
	assert.True(t, Query{CountAuthor: "codd"}.IsCount())
	assert.True(t, Query{CountTitle: "model", Author: "x"}.IsCount())
	assert.False(t, Query{Author: "codd"}.IsCount())
}

func TestKeyIsCanonical(t *testing.T) {
	a := Query{"t": "model", "a": "codd"}
	b := FromValues(url.Values{"a": {"codd", "ignored"}, "t": {"model"}})
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "a=codd&t=model", a.Key())
}
