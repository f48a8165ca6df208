package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FormsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobform_forms_saved_total",
		Help: "Completion form drafts saved, by job kind.",
	}, []string{"kind"})

	FormsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobform_forms_submitted_total",
		Help: "Completion forms submitted, by job kind.",
	}, []string{"kind"})

	PhotosUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobform_photos_uploaded_total",
		Help: "Form photos stored, by job kind.",
	}, []string{"kind"})

	PhotoBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jobform_photo_upload_bytes",
		Help:    "Size of stored form photos.",
		Buckets: prometheus.ExponentialBuckets(64*1024, 2, 8),
	})

	LiveSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobform_live_syncs_total",
		Help: "Live form sync calls, by outcome.",
	}, []string{"outcome"})

	StaleSyncResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobform_live_sync_stale_responses_total",
		Help: "Live form sync responses discarded because a newer sync was issued.",
	})
)
