package tools

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSealProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("success payloads never smuggle an error field", prop.ForAll(
		func(hasError bool, msg string) bool {
			payload := map[string]any{"step": "open", "attempt": 1}
			if hasError {
				payload["error"] = msg
			}
			res := seal(Ok(payload))
			if hasError {
				return !res.OK() && res.Message == msg && res.Payload == nil
			}
			_, leaked := res.Payload["error"]
			return res.OK() && !leaked
		},
		gen.Bool(),
		gen.AlphaString(),
	))

	properties.Property("failures pass through seal untouched", prop.ForAll(
		func(msg string) bool {
			in := Failf(KindConflict, "%s", msg)
			out := seal(in)
			return out.Kind == in.Kind && out.Message == in.Message && out.Payload == nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
