package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root string, rel, content string, perm os.FileMode) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), perm); err != nil {
		t.Fatal(err)
	}
}

func TestLinux_SerialAndModel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sys/class/dmi/id/product_serial", "70617ABCD\n", 0o644)
	writeFile(t, root, "sys/class/dmi/id/product_name", "TC52\n", 0o644)
	p := &Linux{Root: root}

	serial, err := p.Serial()
	if err != nil {
		t.Fatalf("Serial: %v", err)
	}
	if serial != "70617ABCD" {
		t.Errorf("Serial = %q, want %q", serial, "70617ABCD")
	}
	if got := p.Model(); got != "TC52" {
		t.Errorf("Model = %q, want %q (falls back to product name)", got, "TC52")
	}
}

func TestLinux_SerialMissing(t *testing.T) {
	p := &Linux{Root: t.TempDir()}
	if _, err := p.Serial(); err == nil {
		t.Error("Serial with no sysfs entry should fail")
	}
}

func TestLinux_SerialPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, root, "sys/class/dmi/id/product_serial", "70617ABCD", 0o000)
	p := &Linux{Root: root}

	_, err := p.Serial()
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Serial err = %v, want ErrAccessDenied", err)
	}
}

func TestLinux_SystemVersionFromOSRelease(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "etc/os-release", "NAME=\"Debian GNU/Linux\"\nVERSION_ID=\"12\"\n", 0o644)
	p := &Linux{Root: root}
	if got := p.SystemVersion(); got != "12" {
		t.Errorf("SystemVersion = %q, want %q", got, "12")
	}
}

func TestLinux_SystemVersionFallsBackToKernel(t *testing.T) {
	p := &Linux{Root: t.TempDir()}
	if got := p.SystemVersion(); got == "" {
		t.Error("SystemVersion should fall back to the kernel release")
	}
}

func TestFormatLocale(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"en_US.UTF-8", "en_US"},
		{"fr_CA", "fr_CA"},
		{"de_DE@euro", "de_DE"},
		{"pt", "pt"},
		{"C", "en_US"},
		{"POSIX", "en_US"},
		{"", "en_US"},
		{"!!", "en_US"},
	}
	for _, tc := range tests {
		if got := FormatLocale(tc.in); got != tc.want {
			t.Errorf("FormatLocale(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLinux_LocalePrecedence(t *testing.T) {
	env := map[string]string{"LANG": "en_US.UTF-8", "LC_ALL": "fr_FR.UTF-8"}
	p := &Linux{Getenv: func(k string) string { return env[k] }}
	if got := p.Locale(); got != "fr_FR" {
		t.Errorf("Locale = %q, want %q", got, "fr_FR")
	}
}

func TestLinux_InstallID(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "etc/machine-id", "0123456789abcdef0123456789abcdef\n", 0o644)

	a := &Linux{Root: root, InstallKey: []byte("app-a")}
	b := &Linux{Root: root, InstallKey: []byte("app-b")}
	idA, err := a.InstallID()
	if err != nil {
		t.Fatalf("InstallID: %v", err)
	}
	idA2, _ := a.InstallID()
	idB, _ := b.InstallID()
	if len(idA) != 16 {
		t.Errorf("InstallID length = %d, want 16", len(idA))
	}
	if idA != idA2 {
		t.Error("InstallID must be stable for the same key")
	}
	if idA == idB {
		t.Error("InstallID must differ between install keys")
	}
}

func TestLinux_InstallIDMissingMachineID(t *testing.T) {
	p := &Linux{Root: t.TempDir()}
	if _, err := p.InstallID(); err == nil {
		t.Error("InstallID without machine-id should fail")
	}
}
