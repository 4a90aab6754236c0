// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Heavily inspired by https://github.com/btcsuite/btcd/blob/master/version.go
// Copyright (C) 2015-2022 The Lightning Network Developers

package miniscriptshim

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// Commit stores the output of `git describe` for this build. It is set
	// through -ldflags by the Makefile.
	Commit string

	// CommitHash stores the commit hash of this build. Builds from a
	// checkout fill it from the embedded VCS information.
	CommitHash string

	// RawTags contains the raw set of build tags, separated by commas.
	RawTags string

	// GoVersion is the go version the binary was compiled with.
	GoVersion string
)

const (
	// AppMajor defines the major version of this binary.
	AppMajor uint = 0

	// AppMinor defines the minor version of this binary.
	AppMinor uint = 1

	// AppPatch defines the application patch for this binary.
	AppPatch uint = 0

	// AppStatus defines the release status of this binary (e.g. beta).
	AppStatus = "alpha"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	GoVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if CommitHash == "" {
				CommitHash = setting.Value
			}

		case "-tags":
			RawTags = setting.Value
		}
	}
}

// Version returns the semantic version followed by the commit.
func Version() string {
	return fmt.Sprintf("%s commit=%s", semanticVersion(), Commit)
}

// Tags returns the list of build tags that were compiled into the executable.
func Tags() []string {
	if len(RawTags) == 0 {
		return nil
	}

	return strings.Split(RawTags, ",")
}

func semanticVersion() string {
	version := fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
	if AppStatus != "" {
		version += "-" + AppStatus
	}

	return version
}

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version    string   `json:"version"`
	Commit     string   `json:"commit"`
	CommitHash string   `json:"commit_hash"`
	GoVersion  string   `json:"go_version"`
	Tags       []string `json:"build_tags"`
}

// CurrentBuildInfo returns the build information of the running binary.
func CurrentBuildInfo() BuildInfo {
	return BuildInfo{
		Version:    semanticVersion(),
		Commit:     Commit,
		CommitHash: CommitHash,
		GoVersion:  GoVersion,
		Tags:       Tags(),
	}
}
