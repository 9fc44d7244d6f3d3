// Package analysis sends sampled frames to the Gemini generateContent API and
// turns the reply into a validated result.AnalysisResult.
//
// Each Analyze call performs at most one outbound request. Preconditions are
// checked first: an empty frame list fails with ErrNoFrames, a missing key
// with KindMissingCredential, and an encoded request larger than the
// configured limit with KindPayloadTooLarge. None of these touch the network.
//
// The model reply is located at candidates[0].content.parts[0].text. The first
// balanced JSON object in that text is extracted (markdown fences and prose
// are tolerated) and validated fail-closed against the result contract.
//
// HTTPStatus and SetupLink map failures onto the HTTP surface. Error messages
// never include the API key, even though it travels as a query parameter.
package analysis
