package portalloc

import "testing"

func TestRequiredMajorMatchesFixedTable(t *testing.T) {
	cases := []struct {
		version string
		want    int
	}{
		{"1.8.9", 8},
		{"1.12.2", 8},
		{"1.16.5", 8},
		{"1.17", 17},
		{"1.17.1", 17},
		{"1.20.4", 17},
		{"1.20.5", 21},
		{"1.20.6", 21},
		{"1.21", 21},
		{"1.21.1", 21},
	}

	for _, tc := range cases {
		got, err := RequiredMajor(tc.version)
		if err != nil {
			t.Fatalf("RequiredMajor(%q): %v", tc.version, err)
		}
		if got != tc.want {
			t.Errorf("RequiredMajor(%q) = %d, want %d", tc.version, got, tc.want)
		}
	}
}

func TestRequiredMajorRejectsUnparseableVersion(t *testing.T) {
	if _, err := RequiredMajor("latest"); err == nil {
		t.Fatal("expected an error for an unparseable version string")
	}
}

func TestParseJavaVersionBannerHandlesLegacyScheme(t *testing.T) {
	banner := "java version \"1.8.0_392\"\nJava(TM) SE Runtime Environment\n"
	major, err := parseJavaVersionBanner(banner)
	if err != nil {
		t.Fatalf("parseJavaVersionBanner: %v", err)
	}
	if major != 8 {
		t.Fatalf("expected major 8, got %d", major)
	}
}

func TestParseJavaVersionBannerHandlesModernScheme(t *testing.T) {
	banner := "openjdk version \"21.0.1\" 2023-10-17\nOpenJDK Runtime Environment\n"
	major, err := parseJavaVersionBanner(banner)
	if err != nil {
		t.Fatalf("parseJavaVersionBanner: %v", err)
	}
	if major != 21 {
		t.Fatalf("expected major 21, got %d", major)
	}
}

func TestParseJavaVersionBannerRejectsGarbage(t *testing.T) {
	if _, err := parseJavaVersionBanner("not a version banner"); err == nil {
		t.Fatal("expected an error parsing a banner with no quoted version")
	}
}

func TestResolveFailsWhenNoCandidateSatisfiesRequirement(t *testing.T) {
	paths := JavaPaths{
		Java21:    "/nonexistent/path/to/java21",
		Discovery: []string{"/nonexistent/path/to/other-java"},
	}
	if _, err := Resolve("1.20.6", paths); err == nil {
		t.Fatal("expected Resolve to fail when every candidate path is nonexistent")
	}
}

func TestConfiguredCandidatesOrdersByRequiredMajor(t *testing.T) {
	paths := JavaPaths{Java8: "java8", Java16: "java16", Java17: "java17", Java21: "java21"}

	got := configuredCandidates(8, paths)
	want := []string{"java8", "java16", "java17", "java21"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates for major 8, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	got21 := configuredCandidates(21, paths)
	if len(got21) != 1 || got21[0] != "java21" {
		t.Fatalf("expected only java21 for major 21, got %v", got21)
	}
}
