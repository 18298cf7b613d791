package identity

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
)

// ApplicationInfo is a snapshot of the emitting application's metadata.
type ApplicationInfo struct {
	Name        string
	VersionCode int64
	VersionName string
}

// DisplayVersion formats the version as "<versionName> (<versionCode>)".
func (a ApplicationInfo) DisplayVersion() string {
	return fmt.Sprintf("%s (%d)", a.VersionName, a.VersionCode)
}

// AppInfoSource derives ApplicationInfo on demand.
type AppInfoSource func() ApplicationInfo

// StaticAppInfo always returns info.
func StaticAppInfo(info ApplicationInfo) AppInfoSource {
	return func() ApplicationInfo { return info }
}

// BuildAppInfo returns a source that fills fields left empty in configured from the binary's build
// info: the main module path for the name and its version for the version name. readBuildInfo
// defaults to debug.ReadBuildInfo.
func BuildAppInfo(configured ApplicationInfo, readBuildInfo func() (*debug.BuildInfo, bool)) AppInfoSource {
	if readBuildInfo == nil {
		readBuildInfo = debug.ReadBuildInfo
	}
	return func() ApplicationInfo {
		info := configured
		if info.Name != "" && info.VersionName != "" {
			return info
		}
		bi, ok := readBuildInfo()
		if !ok {
			return info
		}
		if info.Name == "" {
			info.Name = bi.Main.Path
		}
		if info.VersionName == "" {
			info.VersionName = strings.TrimPrefix(bi.Main.Version, "v")
		}
		if info.VersionCode == 0 {
			info.VersionCode = versionCodeFromSettings(bi.Settings)
		}
		return info
	}
}

// versionCodeFromSettings uses the VCS commit time as a monotonically increasing version code.
func versionCodeFromSettings(settings []debug.BuildSetting) int64 {
	for _, s := range settings {
		if s.Key != "vcs.time" {
			continue
		}
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, s.Value)
		if len(digits) > 12 {
			digits = digits[:12]
		}
		code, err := strconv.ParseInt(digits, 10, 64)
		if err == nil {
			return code
		}
	}
	return 0
}
