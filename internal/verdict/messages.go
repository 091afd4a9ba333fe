package verdict

import "strings"

// User-facing texts attached to Error and local-only verdicts.
const (
	MsgConfigurationRequired = "Gemini API Key is not set and no on-device model is available. Configure a key in Veritas settings."
	MsgPageContextNeedsCloud = "Checking a claim against page content requires a Gemini API Key. Configure a key in Veritas settings."
	MsgEmptyResponse         = "Empty AI response. Possible configuration issue or security filter."
	MsgInvalidKey            = "API Key is invalid or restricted. Check your key format."
	MsgQuotaExceeded         = "API Key is valid but quota exceeded. Try again later."
	MsgKeyOK                 = "API Key is valid and working."
	MsgKeyUnexpected         = "API Key responded, but the test reply was not recognized."

	LocalOnlyNotice = "This verification is based only on on-device model knowledge. Configure a cloud API key for real-time grounded verification."
)

// SafetyBlocked describes a prompt rejected by the upstream safety filter.
func SafetyBlocked(reason string) string {
	return "Claim blocked by Safety Filter: " + reason
}

// UpstreamError rewrites known upstream error markers to clearer text and
// otherwise prefixes the upstream message.
func UpstreamError(message, status string) string {
	switch s := message + " " + status; {
	case strings.Contains(s, "API_KEY_INVALID"), strings.Contains(strings.ToLower(s), "api key not valid"):
		return MsgInvalidKey
	case strings.Contains(s, "QUOTA_EXCEEDED"), strings.Contains(s, "RESOURCE_EXHAUSTED"):
		return MsgQuotaExceeded
	}
	return "API Error: " + message
}

// TransportError describes a network-level failure.
func TransportError(err error) string {
	return "Network/Fatal Error: " + err.Error()
}

// PageFetchFailed describes a page that could not be retrieved for a URL
// check.
func PageFetchFailed(err error) string {
	return "Failed to retrieve content from URL: " + err.Error() + ". Check URL validity."
}

// ImageFetchFailed describes an image that could not be retrieved for an
// image-URL check.
func ImageFetchFailed(err error) string {
	return "Failed to retrieve image: " + err.Error()
}
