package rt

import (
	gtfsrt "github.com/OneBusAway/go-gtfs/proto"

	"tracker.gpmetro.org/internal/models"
)

// reconcileAlerts maps a service alerts feed to store records. Only alerts
// with an English header and description survive; the clients are
// English-only and an untranslated alert renders as an empty card.
func reconcileAlerts(feed *gtfsrt.FeedMessage) []models.Alert {
	alerts := make([]models.Alert, 0, len(feed.GetEntity()))
	for _, entity := range feed.GetEntity() {
		a := entity.GetAlert()
		if a == nil {
			continue
		}
		header := englishText(a.GetHeaderText())
		description := englishText(a.GetDescriptionText())
		if header == "" || description == "" {
			continue
		}
		alerts = append(alerts, models.Alert{
			ID:              entity.GetId(),
			HeaderText:      header,
			DescriptionText: description,
		})
	}
	return alerts
}

func englishText(ts *gtfsrt.TranslatedString) string {
	for _, tr := range ts.GetTranslation() {
		if tr.GetLanguage() == "en" {
			return tr.GetText()
		}
	}
	return ""
}
