package telemetry

import "streamview/telemetry/internal/shared"

// Convenience wrappers over Track. Each assembles a conventional name,
// properties, and category; none carries state or error semantics of its own.
// The standard keys win over colliding caller-supplied properties.

// TrackPageView records a page_view for the given page.
func (m *Manager) TrackPageView(page string, properties shared.Properties) {
	props := shared.Properties{}
	for k, v := range properties {
		props[k] = v
	}
	props["page"] = page

	m.Track("page_view", props, shared.CategoryNavigation)
}

// TrackClick records a click on the named element.
func (m *Manager) TrackClick(element string, properties shared.Properties) {
	props := shared.Properties{}
	for k, v := range properties {
		props[k] = v
	}
	props["element"] = element

	m.Track("click", props, shared.CategoryUserAction)
}

// TrackVideoEvent records a playback action ("play", "pause", "seek", ...)
// as video_<action> against the given video.
func (m *Manager) TrackVideoEvent(action, videoID string, properties shared.Properties) {
	props := shared.Properties{}
	for k, v := range properties {
		props[k] = v
	}
	props["videoId"] = videoID

	m.Track("video_"+action, props, shared.CategoryVideo)
}

// TrackSearch records a search query and how many results it returned.
func (m *Manager) TrackSearch(query string, resultCount int) {
	m.Track("search", shared.Properties{
		"query":       query,
		"resultCount": resultCount,
	}, shared.CategoryUserAction)
}

// TrackEngagement records an engagement action (like, subscribe, share, ...)
// under its own name.
func (m *Manager) TrackEngagement(action string, properties shared.Properties) {
	m.Track(action, properties, shared.CategoryEngagement)
}

// TrackPerformance records one performance measurement.
func (m *Manager) TrackPerformance(metric string, value float64, properties shared.Properties) {
	props := shared.Properties{}
	for k, v := range properties {
		props[k] = v
	}
	props["metric"] = metric
	props["value"] = value

	m.Track("performance_metric", props, shared.CategoryPerformance)
}

// TrackError records an error observed by the host.
func (m *Manager) TrackError(message string, properties shared.Properties) {
	props := shared.Properties{}
	for k, v := range properties {
		props[k] = v
	}
	props["message"] = message

	m.Track("error", props, shared.CategoryError)
}
