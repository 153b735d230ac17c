package shapes

import "testing"

func TestSeriesPrefix(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"m5.xlarge", "m5", false},
		{"c5d.4xlarge", "c5d", false},
		{"n2-standard-4", "n2-standard", false},
		{"e2-medium", "e2", false},
		{"Standard_D4s_v3", "Standard_D_v3", false},
		{"Standard_E8as_v4", "Standard_E_v4", false},
		{"", "", true},
		{"mystery", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SeriesPrefix(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SeriesPrefix(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SeriesPrefix(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestSameSeries(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"m5.large", "m5.xlarge", true},
		{"m5.large", "M5.2xlarge", true},
		{"m5.large", "c5.large", false},
		{"n2-standard-4", "n2-standard-8", true},
		{"garbage", "m5.large", false},
	}
	for _, tt := range tests {
		if got := SameSeries(tt.a, tt.b); got != tt.want {
			t.Errorf("SameSeries(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFamilyType(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  string
	}{
		{"explicit family wins", Shape{Name: "m5.large", FamilyType: "custom"}, "custom"},
		{"derived general", Shape{Name: "m5.large"}, "general"},
		{"derived compute", Shape{Name: "c5.xlarge"}, "compute"},
		{"derived memory", Shape{Name: "r5.large"}, "memory"},
		{"derived from series field", Shape{Series: "t3"}, "general"},
		{"unknown letter", Shape{Name: "z9.large"}, ""},
		{"unparseable name", Shape{Name: "mystery"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FamilyType(tt.shape); got != tt.want {
				t.Errorf("FamilyType(%+v) = %q, want %q", tt.shape, got, tt.want)
			}
		})
	}
}

func TestSameFamily(t *testing.T) {
	general := Shape{Name: "m5.large"}
	alsoGeneral := Shape{Name: "t3.large"}
	compute := Shape{Name: "c5.large"}
	unknown := Shape{Name: "z9.large"}

	if !SameFamily(general, alsoGeneral) {
		t.Error("m5 and t3 should share the general family")
	}
	if SameFamily(general, compute) {
		t.Error("m5 and c5 should not share a family")
	}
	if SameFamily(unknown, unknown) {
		t.Error("shapes with no derivable family must never match")
	}
}
