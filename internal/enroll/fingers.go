package enroll

// Finger indexes run 0-9: right hand thumb to pinky, then left hand.
var fingerNames = [10]string{
	"Right Thumb",
	"Right Index",
	"Right Middle",
	"Right Ring",
	"Right Pinky",
	"Left Thumb",
	"Left Index",
	"Left Middle",
	"Left Ring",
	"Left Pinky",
}

// FingerName returns the display label for a finger index, or
// "Unknown" when the index is out of range.
func FingerName(index int) string {
	if index < 0 || index > 9 {
		return "Unknown"
	}
	return fingerNames[index]
}

// ValidFingerIndex reports whether index addresses a physical finger.
func ValidFingerIndex(index int) bool {
	return index >= 0 && index <= 9
}
