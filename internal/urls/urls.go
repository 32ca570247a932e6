package urls

// Documentation URLs for guides and troubleshooting

// UserManual is the OpenGarage user manual, covering setup, sensor mounting
// and every option exposed by /jo.
const UserManual = "https://github.com/OpenGarage/OpenGarage-Firmware/tree/master/docs"

// APIDocs describes the controller HTTP API (/jc, /cc, /jo, /co, /jl).
const APIDocs = "https://github.com/OpenGarage/OpenGarage-Firmware/tree/master/docs"

// DeviceKeyHelp explains the device key and how to reset a forgotten one.
const DeviceKeyHelp = "https://opengarage.io/forums/"

// FirmwareReleases lists firmware builds, needed for OpenThings Cloud support.
const FirmwareReleases = "https://github.com/OpenGarage/OpenGarage-Firmware/releases"

// CloudDashboard is where OpenThings Cloud tokens are issued.
const CloudDashboard = "https://cloud.openthings.io"
