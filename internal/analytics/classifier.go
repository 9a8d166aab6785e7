package analytics

import (
	"fmt"

	"iot-monitor/internal/models"
)

// SpikeCurrent is the absolute ceiling above which an overload is reported as a possible short circuit.
const SpikeCurrent = 15.0

// Device type labels. Classify never emits anything else.
const (
	TypeExtremeSpike    = "EXTREME SPIKE"
	TypeOverload        = "OVERLOAD"
	TypeNoLoad          = "No load"
	TypeAccessory       = "Low-power accessory"
	TypePhoneCharger    = "Phone charger"
	TypeLaptop          = "Laptop"
	TypeDesktop         = "Desktop computer"
	TypeMultipleDevices = "Multiple devices"
	TypeUnknown         = "Unknown"
)

type band struct {
	upper  float64
	device models.DeviceClassification
}

// Half-open bands below the threshold, ascending. The last band is capped by the threshold itself.
var bands = []band{
	{0.01, models.DeviceClassification{Type: TypeNoLoad, Icon: "🔌", Description: "No devices connected", Color: "#95a5a6"}},
	{0.1, models.DeviceClassification{Type: TypeAccessory, Icon: "🎧", Description: "Headphones or small accessory charging", Color: "#3498db"}},
	{1.5, models.DeviceClassification{Type: TypePhoneCharger, Icon: "📱", Description: "Smartphone or tablet charging", Color: "#27ae60"}},
	{4.0, models.DeviceClassification{Type: TypeLaptop, Icon: "💻", Description: "Laptop in use or charging", Color: "#f39c12"}},
	{8.0, models.DeviceClassification{Type: TypeDesktop, Icon: "🖥️", Description: "Desktop computer (CPU + monitor)", Color: "#e67e22"}},
}

var multipleDevices = models.DeviceClassification{
	Type:        TypeMultipleDevices,
	Icon:        "🔋",
	Description: "Several devices connected, high but safe load",
	Color:       "#d35400",
}

// Classify maps a measured current and the sensor's overload threshold to a device classification.
// Overload checks come first, so a reading at or above the threshold is never reported as a device.
func Classify(current, threshold float64) models.DeviceClassification {
	if current >= threshold {
		if current >= SpikeCurrent {
			return models.DeviceClassification{
				Type:        TypeExtremeSpike,
				Icon:        "💥",
				Description: fmt.Sprintf("Short circuit or severe fault detected (%.2fA)", current),
				Color:       "#ff0000",
			}
		}
		return models.DeviceClassification{
			Type:        TypeOverload,
			Icon:        "⚠️",
			Description: fmt.Sprintf("Consumption (%.2fA) exceeds threshold (%.1fA)", current, threshold),
			Color:       "#e74c3c",
		}
	}

	for _, b := range bands {
		if current < b.upper {
			return b.device
		}
	}
	if current >= 8.0 && current < threshold {
		return multipleDevices
	}

	// Only NaN gets here.
	return models.DeviceClassification{
		Type:        TypeUnknown,
		Icon:        "❓",
		Description: fmt.Sprintf("Unclassified consumption (%.2fA)", current),
		Color:       "#7f8c8d",
	}
}

// IsOverload reports whether current is at or above the threshold current.
func IsOverload(current float64, t models.Threshold) bool {
	return current >= t.Current
}
