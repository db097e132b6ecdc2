package emotion

import (
	"errors"
	"testing"
)

func TestParseResponseShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "flat",
			body: `{"emotions":[{"name":"joy","score":0.2},{"name":"Anxiety","score":0.5}]}`,
			want: "anxiety",
		},
		{
			name: "predictions uses first entry",
			body: `{"predictions":[{"emotions":[{"name":"sadness","score":0.9}]},{"emotions":[{"name":"joy","score":1}]}]}`,
			want: "sadness",
		},
		{
			name: "batch first model",
			body: `[{"results":{"predictions":[{"models":{"prosody":{"grouped_predictions":[{"predictions":[{"emotions":[{"name":"Calmness","score":0.3},{"name":"Excitement","score":0.6}]}]}]},"language":{"grouped_predictions":[{"predictions":[{"emotions":[{"name":"anger","score":0.99}]}]}]}}}]}}]`,
			want: "excitement",
		},
		{
			name: "tie keeps first occurrence",
			body: `{"emotions":[{"name":"joy","score":0.4},{"name":"anger","score":0.9},{"name":"surprise","score":0.9}]}`,
			want: "anger",
		},
		{
			name: "unknown label passes through",
			body: `{"emotions":[{"name":"  Awe ","score":0.5}]}`,
			want: "awe",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseResponse([]byte(tc.body))
			if err != nil {
				t.Fatalf("ParseResponse err: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestParseResponseRejects(t *testing.T) {
	bodies := []string{
		`{"emotions":[]}`,
		`{"predictions":[]}`,
		`{"status":"ok"}`,
		`not json`,
		``,
		`[]`,
	}
	for _, body := range bodies {
		if _, err := ParseResponse([]byte(body)); !errors.Is(err, ErrUnrecognizedShape) {
			t.Fatalf("body %q: expected ErrUnrecognizedShape, got %v", body, err)
		}
	}
}
