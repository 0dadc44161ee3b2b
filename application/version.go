package application

import "github.com/blang/semver/v4"

// BuildVersion is stamped at link time:
//
//	go build -ldflags "-X github.com/lk2023060901/danmu-chatroom-go/application.BuildVersion=1.2.3"
var BuildVersion = "0.1.0"

// Version parses BuildVersion, falling back to 0.0.0 when it is not valid semver.
func Version() semver.Version {
	v, err := semver.ParseTolerant(BuildVersion)
	if err != nil {
		return semver.Version{}
	}
	return v
}
