package bledb

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1809": "Health Thermometer",
	"181a": "Environmental Sensing",
	"fff0": "Vendor Sensor Service",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a19": "Battery Level",
	"2a1c": "Temperature Measurement",
	"2a1e": "Intermediate Temperature",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a6e": "Temperature",
	"fff1": "Vendor Sensor Data",
}

var descriptors = map[string]string{
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Descriptor",
	"2902": "Client Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
}
