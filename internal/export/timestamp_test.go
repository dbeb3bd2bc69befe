package export

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		date    time.Time
		want    time.Time
		wantErr bool
	}{
		{
			name:  "full UTC",
			token: "2023-06-22 15:56:54 UTC",
			want:  time.Date(2023, 6, 22, 15, 56, 54, 0, time.UTC),
		},
		{
			name:  "full without suffix",
			token: "2023-06-22 15:56:54",
			want:  time.Date(2023, 6, 22, 15, 56, 54, 0, time.UTC),
		},
		{
			name:  "12 hour am",
			token: "8:24 AM",
			date:  date,
			want:  time.Date(2024, 1, 5, 8, 24, 0, 0, time.UTC),
		},
		{
			name:  "12 hour pm",
			token: "8:53 PM",
			date:  date,
			want:  time.Date(2024, 1, 5, 20, 53, 0, 0, time.UTC),
		},
		{
			name:  "24 hour",
			token: "14:30",
			date:  date,
			want:  time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC),
		},
		{
			name:    "clock without date header",
			token:   "8:24 AM",
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not a time",
			date:    date,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.token, tt.date)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseTimestamp(%q) = %v, want error", tt.token, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTimestamp(%q) error = %v", tt.token, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestParseDateHeader(t *testing.T) {
	got, ok := parseDateHeader("---- 2023-06-22 ----")
	if !ok {
		t.Fatal("date header not recognised")
	}
	if want := time.Date(2023, 6, 22, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	for _, line := range []string{"----", "---- nope ----", "[10:00] <a> b"} {
		if _, ok := parseDateHeader(line); ok {
			t.Errorf("%q should not parse as a date header", line)
		}
	}
}
