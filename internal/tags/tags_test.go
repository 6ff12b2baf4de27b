package tags

import (
	"testing"
)

func TestParseName(t *testing.T) {
	cases := []struct {
		in      string
		version string
		ok      bool
	}{
		{"php-8.3.0", "8.3.0", true},
		{"PHP-8.3.0", "8.3.0", true},
		{"8.2.15", "8.2.15", true},
		{"php-8.3.0RC2", "8.3.0-RC2", true},
		{"php-5.3.7alpha1", "5.3.7-alpha1", true},
		{"php-7.4.0beta4", "7.4.0-beta4", true},
		{"php-8.3", "8.3.0", true},
		{"not-a-version", "", false},
		{"php-", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		tag, ok := ParseName(tc.in)
		if ok != tc.ok {
			t.Fatalf("ParseName(%q): ok=%v, want %v", tc.in, ok, tc.ok)
		}
		if ok && tag.Version != tc.version {
			t.Fatalf("ParseName(%q): version=%q, want %q", tc.in, tag.Version, tc.version)
		}
	}
}

func TestChannelClassification(t *testing.T) {
	alpha, _ := ParseName("php-8.4.0alpha1")
	beta, _ := ParseName("php-8.4.0beta2")
	rc, _ := ParseName("php-8.4.0RC3")
	stable, _ := ParseName("php-8.4.0")

	if !alpha.IsAlpha() || alpha.IsStable() {
		t.Fatal("alpha misclassified")
	}
	if !beta.IsBeta() || beta.IsStable() {
		t.Fatal("beta misclassified")
	}
	if !rc.IsRC() || rc.IsStable() {
		t.Fatal("rc misclassified")
	}
	if !stable.IsStable() || stable.IsRC() || stable.IsAlpha() || stable.IsBeta() {
		t.Fatal("stable misclassified")
	}
}

func TestSortDescending(t *testing.T) {
	list := []ReleaseTag{
		mustTag(t, "php-8.2.15"),
		mustTag(t, "php-8.3.1"),
		mustTag(t, "php-8.3.0RC2"),
		mustTag(t, "php-8.3.0"),
	}
	sortDescending(list)

	want := []string{"8.3.1", "8.3.0", "8.3.0-RC2", "8.2.15"}
	for i, w := range want {
		if list[i].Version != w {
			t.Fatalf("position %d: got %s, want %s", i, list[i].Version, w)
		}
	}
}

func mustTag(t *testing.T, name string) ReleaseTag {
	t.Helper()
	tag, ok := ParseName(name)
	if !ok {
		t.Fatalf("ParseName(%q) failed", name)
	}
	return tag
}
