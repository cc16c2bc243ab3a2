package listing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	listingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homeonmap_listings_created_total",
		Help: "Listings successfully created.",
	})
	listingsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homeonmap_listings_deleted_total",
		Help: "Listings deleted, by requester kind (owner or admin).",
	}, []string{"by"})
	quotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homeonmap_listing_quota_rejections_total",
		Help: "Create attempts refused by the free-tier quota.",
	})
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homeonmap_image_uploads_total",
		Help: "Image uploads by result.",
	}, []string{"result"})
)
