package alerts

import "testing"

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name      string
		distance  float64
		threshold float64
		breach    bool
		severity  string
	}{
		{"well inside", 60, 50, false, ""},
		{"exactly at threshold is normal", 50, 50, false, ""},
		{"just below threshold", 49.9, 50, true, SeverityHigh},
		{"high breach", 30, 50, true, SeverityHigh},
		{"exactly at critical boundary is high", 25, 50, true, SeverityHigh},
		{"critical breach", 10, 50, true, SeverityCritical},
		{"zero distance", 0, 50, true, SeverityCritical},
		{"low threshold keeps strict compare", 20, 20, false, ""},
		{"breach under low threshold is critical", 15, 20, true, SeverityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(tc.distance, tc.threshold)
			if v.Breach != tc.breach {
				t.Fatalf("Evaluate(%v, %v).Breach = %v, want %v", tc.distance, tc.threshold, v.Breach, tc.breach)
			}
			if v.Severity != tc.severity {
				t.Fatalf("Evaluate(%v, %v).Severity = %q, want %q", tc.distance, tc.threshold, v.Severity, tc.severity)
			}
		})
	}
}
