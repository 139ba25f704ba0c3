package spotify

import "testing"

func TestSelectDevice_UnknownPreference(t *testing.T) {
	if _, ok := selectDevice([]Device{{ID: "d1", Name: "Phone", IsActive: true}}, "TV"); ok {
		t.Error("expected no device for an unknown preference")
	}
}

func TestSelectDevice(t *testing.T) {
	devices := []Device{
		{ID: "d1", Name: "Speaker", IsRestricted: true, IsActive: true},
		{ID: "", Name: "Ghost"},
		{ID: "d3", Name: "Phone"},
		{ID: "d4", Name: "Laptop"},
	}

	tests := []struct {
		name      string
		preferred string
		wantID    string
	}{
		{"first usable when none active", "", "d3"},
		{"preferred by name", "laptop", "d4"},
		{"preferred by id", "d4", "d4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := selectDevice(devices, tt.preferred)
			if !ok || d.ID != tt.wantID {
				t.Errorf("selectDevice(%q) = %+v, %v; want %s", tt.preferred, d, ok, tt.wantID)
			}
		})
	}
}
