package transcribe

import (
	"testing"
)

func TestSpanValidate(t *testing.T) {
	tests := []struct {
		name    string
		span    Span
		wantErr bool
	}{
		{"valid", Span{Start: 0, End: 2, Text: "hello"}, false},
		{"end equals start", Span{Start: 2, End: 2, Text: "hello"}, true},
		{"end before start", Span{Start: 3, End: 1, Text: "hello"}, true},
		{"empty text", Span{Start: 0, End: 2, Text: ""}, true},
		{"whitespace text", Span{Start: 0, End: 2, Text: "   "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.span.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
