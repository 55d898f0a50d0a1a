package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		documentsUploaded,
		documentsIndexed,
		searchResults,
		historyCleaned,
	)
}

var (
	documentsUploaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_uploaded_total",
			Help: "Uploaded documents by type.",
		},
		[]string{"type"},
	)

	documentsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "documents_indexed_total",
			Help: "Documents whose text extraction finished.",
		},
	)

	searchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "document_search_results",
			Help:    "Result-set size distribution for document searches.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	historyCleaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_history_cleaned_total",
			Help: "Chat messages removed by the retention worker.",
		},
	)
)

func IncDocumentUploaded(docType string) {
	documentsUploaded.WithLabelValues(norm(docType)).Inc()
}

func IncDocumentIndexed() { documentsIndexed.Inc() }

func ObserveSearch(n int) { searchResults.Observe(float64(n)) }

func AddHistoryCleaned(n int64) { historyCleaned.Add(float64(n)) }
