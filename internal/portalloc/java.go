package portalloc

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrJavaNotFound is returned when no configured, discovered, or PATH
// Java binary satisfies the resolved major version requirement.
var ErrJavaNotFound = errors.New("portalloc: no matching java binary found")

// JavaPaths holds the explicit per-major-version paths from
// config.JavaConfig, checked before the discovery list and PATH.
type JavaPaths struct {
	Java8  string
	Java16 string
	Java17 string
	Java21 string
	// Discovery is an extra list of candidate binaries to probe, in
	// order, before falling back to "java" on PATH.
	Discovery []string
}

// RequiredMajor resolves the minimum Java major version a Minecraft
// version needs, per the fixed table in §4.8:
//
//	<= 1.16.x      -> Java 8+
//	1.17 - 1.20.4  -> Java 17+
//	>= 1.20.5      -> Java 21+
func RequiredMajor(mcVersion string) (int, error) {
	major, minor, patch, err := parseMCVersion(mcVersion)
	if err != nil {
		return 0, err
	}

	switch {
	case major == 1 && minor <= 16:
		return 8, nil
	case major == 1 && minor == 20 && patch >= 5:
		return 21, nil
	case major == 1 && minor <= 20:
		return 17, nil
	default:
		return 21, nil
	}
}

// Resolve returns the path to a Java binary satisfying mcVersion's
// required major version, preferring explicit configured paths, then
// the discovery list, then PATH.
func Resolve(mcVersion string, paths JavaPaths) (string, error) {
	required, err := RequiredMajor(mcVersion)
	if err != nil {
		return "", err
	}

	candidates := configuredCandidates(required, paths)
	candidates = append(candidates, paths.Discovery...)
	candidates = append(candidates, "java")

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		resolved, ok := resolveCandidate(candidate, required)
		if ok {
			return resolved, nil
		}
	}

	return "", fmt.Errorf("%w: minecraft %s requires java %d+", ErrJavaNotFound, mcVersion, required)
}

func configuredCandidates(required int, paths JavaPaths) []string {
	switch {
	case required >= 21:
		return []string{paths.Java21}
	case required >= 17:
		return []string{paths.Java17, paths.Java21}
	case required >= 16:
		return []string{paths.Java16, paths.Java17, paths.Java21}
	default:
		return []string{paths.Java8, paths.Java16, paths.Java17, paths.Java21}
	}
}

// resolveCandidate locates candidate (a path or a bare name resolved
// via PATH) and checks its reported version meets required.
func resolveCandidate(candidate string, required int) (string, bool) {
	resolved := candidate
	if !strings.Contains(candidate, "/") {
		found, err := exec.LookPath(candidate)
		if err != nil {
			return "", false
		}
		resolved = found
	}

	major, err := javaMajorVersion(resolved)
	if err != nil {
		return "", false
	}
	if major < required {
		return "", false
	}
	return resolved, true
}

// javaMajorVersion runs `<bin> -version` and parses the major version
// out of its stderr banner, handling both the legacy "1.8.0_392" and
// modern "17.0.9" formats.
func javaMajorVersion(bin string) (int, error) {
	out, err := exec.Command(bin, "-version").CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("run %s -version: %w", bin, err)
	}
	return parseJavaVersionBanner(string(out))
}

func parseJavaVersionBanner(banner string) (int, error) {
	start := strings.IndexByte(banner, '"')
	if start < 0 {
		return 0, fmt.Errorf("no version string in banner: %q", banner)
	}
	end := strings.IndexByte(banner[start+1:], '"')
	if end < 0 {
		return 0, fmt.Errorf("unterminated version string in banner: %q", banner)
	}
	version := banner[start+1 : start+1+end]

	parts := strings.Split(version, ".")
	if len(parts) == 0 {
		return 0, fmt.Errorf("empty version string")
	}
	first, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("parse major version from %q: %w", version, err)
	}
	if first == 1 && len(parts) > 1 {
		// Legacy "1.8.0_392" scheme: the real major version is the
		// second component.
		second, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, fmt.Errorf("parse legacy major version from %q: %w", version, err)
		}
		return second, nil
	}
	return first, nil
}

func parseMCVersion(v string) (major, minor, patch int, err error) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return 0, 0, 0, fmt.Errorf("unparseable minecraft version %q", v)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse major component of %q: %w", v, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse minor component of %q: %w", v, err)
	}
	if len(parts) == 3 {
		patch, err = strconv.Atoi(parts[2])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("parse patch component of %q: %w", v, err)
		}
	}
	return major, minor, patch, nil
}
