package build_info

// Values overridden during the build with ldflags
var (
	Version   = "dev"
	BuildDate = "unknown"
)
