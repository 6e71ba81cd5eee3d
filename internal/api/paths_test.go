package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		path string
		want Paths
	}{
		{"/", Paths{}},
		{"", Paths{}},
		{"/books", Paths{Resource: "books"}},
		{"books/", Paths{Resource: "books"}},
		{"/books/_summary", Paths{Resource: "books", Verb: "_summary"}},
		{"/books//_summary", Paths{Resource: "books", Verb: "_summary"}},
		{"/books/_segment/seg1", Paths{Resource: "books", Verb: "_segment", Sub: "seg1"}},
		{"/books/_segment/seg1/extra", Paths{Resource: "books", Verb: "_segment", Sub: "seg1"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParsePath(tc.path), "path %q", tc.path)
	}
}
