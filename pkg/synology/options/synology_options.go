package options

import "time"

const (
	// DefaultPort is the DSM https port
	DefaultPort = 5001
	// DefaultLimit is the number of photos requested per fetch cycle
	DefaultLimit = 100
	// DefaultThumbnailSize is the thumbnail rendition shown on the frame
	DefaultThumbnailSize = "sm"
	// DefaultRefreshInterval is the delay between two fetch cycles
	DefaultRefreshInterval = 30 * time.Minute
	// DefaultRequestTimeout bounds every outbound request
	DefaultRequestTimeout = 15 * time.Second
	// DefaultLoginApiVersion is the first SYNO.API.Auth version supporting device tokens
	DefaultLoginApiVersion = 6
	// DefaultSessionName is the application session requested at login
	DefaultSessionName = "SynologyPhotos"
)

// SynologyOptions contains options to access Synology NAS web api
type SynologyOptions struct {
	Host            string `yaml:"host"  url:"-"`
	Port            int    `yaml:"port"  url:"-"`
	Secure          bool   `yaml:"secure" url:"-"`
	LoginApiVersion int    `yaml:"loginApiVersion" url:"version"`
	API             string `yaml:"-" url:"api"`
	Method          string `yaml:"-" url:"method"`

	// === Version 1 and later, DSM 3.2 ===
	// Required.
	// Login account name
	Username string `yaml:"username" url:"account"`
	// Required.
	// Login account password
	Password string `yaml:"password" url:"passwd"`
	// Optional.
	// Application session name.
	SessionName string `yaml:"sessionName" url:"session"`

	// === Version 2 and later, DSM  4.1 ===
	// Optional.
	// If format is “sid”, session ID is not included in response header, but
	// response json data only.
	Format string `yaml:"-" url:"format"`

	// === Version 3, DSM 4.2 ===
	// Optional.
	// 6-digit OTP code.
	OtpCode *string `yaml:"-" url:"otp_code,omitempty"`

	// === Version 6, DSM 6.0 beta 2 ===
	// Optional.
	// yes or no, default to no.
	EnableDeviceToken *string `yaml:"-" url:"enable_device_token,omitempty"`
	// Optional.
	// Device id (max: 255).
	DeviceId *string `yaml:"deviceId" url:"device_id,omitempty"`
	// Optional.
	// Device name (max: 255).
	DeviceName *string `yaml:"deviceName" url:"device_name,omitempty"`
}

// NewSynologyOptions returns login options with the fixed auth.cgi parameters set
func NewSynologyOptions() SynologyOptions {
	return SynologyOptions{
		Port:            DefaultPort,
		Secure:          true,
		LoginApiVersion: DefaultLoginApiVersion,
		API:             "SYNO.API.Auth",
		Method:          "login",
		SessionName:     DefaultSessionName,
		Format:          "sid",
	}
}

// WithoutDevice returns a copy of the options that logs in with the password only
func (o SynologyOptions) WithoutDevice() SynologyOptions {
	o.DeviceId = nil
	o.DeviceName = nil
	o.EnableDeviceToken = nil
	o.OtpCode = nil
	return o
}

// WithDevice returns a copy of the options carrying a remembered device id
func (o SynologyOptions) WithDevice(deviceID, deviceName string) SynologyOptions {
	o.DeviceId = &deviceID
	if deviceName != "" {
		o.DeviceName = &deviceName
	}
	return o
}

// WithOtp returns a copy of the options asking the NAS to issue a device token for the OTP
func (o SynologyOptions) WithOtp(code, deviceName string) SynologyOptions {
	yes := "yes"
	o.OtpCode = &code
	o.EnableDeviceToken = &yes
	o.DeviceId = nil
	if deviceName != "" {
		o.DeviceName = &deviceName
	}
	return o
}
