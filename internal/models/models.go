package models

import (
	"time"
)

// DateLayout is the calendar date format exchanged with the forecast service.
const DateLayout = "2006-01-02"

type DateType string

const (
	DateSingle DateType = "single"
	DatePeriod DateType = "period"
)

// PredictionRequest is the order-prediction form as submitted to /api/predict.
type PredictionRequest struct {
	DateType      DateType `json:"dateType" validate:"required,oneof=single period"`
	StartDate     string   `json:"date" validate:"required,datetime=2006-01-02"`
	EndDate       string   `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Establishment string   `json:"establishment,omitempty"`
	LinenType     string   `json:"linenType,omitempty"`
	Factors       []string `json:"factors"`
}

type Reliability string

const (
	ReliabilityLow    Reliability = "low"
	ReliabilityMedium Reliability = "medium"
	ReliabilityHigh   Reliability = "high"
)

type Interval struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Prediction struct {
	Date               string      `json:"date"`
	Value              float64     `json:"value"`
	ConfidenceInterval *Interval   `json:"confidenceInterval,omitempty"`
	Trend              *float64    `json:"trend,omitempty"`
	WeeklyComponent    *float64    `json:"weeklyComponent,omitempty"`
	AnnualComponent    *float64    `json:"annualComponent,omitempty"`
	Reliability        Reliability `json:"reliability,omitempty"`
	Message            string      `json:"message,omitempty"`
}

type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

type ModelStats struct {
	Accuracy        float64        `json:"accuracy"`
	MAPE            *float64       `json:"mape,omitempty"`
	RMSE            *float64       `json:"rmse,omitempty"`
	MAE             *float64       `json:"mae,omitempty"`
	ConfidenceLevel *float64       `json:"confidence_level,omitempty"`
	SampleSize      *int           `json:"sample_size,omitempty"`
	TrendDirection  TrendDirection `json:"trend_direction,omitempty"`
	TrendStrength   *float64       `json:"trend_strength,omitempty"`
}

// HistoricalPoint is the same calendar day in the two reference years.
type HistoricalPoint struct {
	Value2024 float64 `json:"value2024"`
	Value2023 float64 `json:"value2023"`
}

type HistoricalQuery struct {
	Establishment string
	LinenType     string
	Month         int
	Day           int
}

type HistoricalComparison struct {
	Date           string  `json:"date"`
	Prediction     float64 `json:"prediction"`
	Historical2024 float64 `json:"historical2024"`
	Historical2023 float64 `json:"historical2023"`
}

type SessionPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// PredictionSession is one completed forecast kept in the prediction history.
type PredictionSession struct {
	Timestamp     time.Time      `json:"timestamp"`
	Establishment string         `json:"establishment"`
	LinenType     string         `json:"linenType"`
	Predictions   []SessionPoint `json:"predictions"`
}

type UploadModule string

const (
	ModuleOrders     UploadModule = "orders"
	ModuleDeliveries UploadModule = "deliveries"
	ModuleHR         UploadModule = "hr"
)

var UploadModules = []UploadModule{ModuleOrders, ModuleDeliveries, ModuleHR}

func (m UploadModule) Valid() bool {
	switch m {
	case ModuleOrders, ModuleDeliveries, ModuleHR:
		return true
	}
	return false
}

type UploadModuleRequirements struct {
	Module               UploadModule `json:"module"`
	RequiredFilenames    []string     `json:"requiredFilenames"`
	Notes                string       `json:"notes,omitempty"`
	LastAcceptedFilename string       `json:"lastAcceptedFilename,omitempty"`
}

type UploadMode string

const (
	UploadFiles  UploadMode = "files"
	UploadFolder UploadMode = "folder"
)

// FileRef is a file selected for ingestion. Content is held in memory so a
// failed upload can be retried with the same selection.
type FileRef struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Content     []byte `json:"-"`
}

type UploadJob struct {
	Module        UploadModule
	Files         []FileRef
	RelativePaths []string
	Mode          UploadMode
}

type ModelRegistryEntry struct {
	ModelName string    `json:"model_name"`
	R2Score   float64   `json:"r2_score"`
	RMSE      *float64  `json:"rmse,omitempty"`
	MAE       *float64  `json:"mae,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type PerformanceOverview struct {
	OverallPerformance float64              `json:"overall_performance"`
	Models             []ModelRegistryEntry `json:"models_metrics"`
	LastUpdate         time.Time            `json:"last_update"`
}

// MeanR2 is the mean R² across registry entries, 0 when there are none.
func MeanR2(entries []ModelRegistryEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.R2Score
	}
	return sum / float64(len(entries))
}

type TrainingHistoryRow struct {
	ID             int64     `json:"id"`
	ModelName      string    `json:"model_name"`
	R2Score        *float64  `json:"r2_score"`
	MAE            *float64  `json:"mae"`
	RMSE           *float64  `json:"rmse"`
	TrainingDate   time.Time `json:"training_date"`
	AdditionalInfo *string   `json:"additional_info"`
}

type DeliveryStatus string

const (
	DeliveryExcellent DeliveryStatus = "excellent"
	DeliveryGood      DeliveryStatus = "good"
	DeliveryWarning   DeliveryStatus = "warning"
)

type DeliveryRequest struct {
	Date     string  `json:"date"`
	Article  string  `json:"article"`
	Quantity float64 `json:"quantity"`
}

type DeliveryPrediction struct {
	PredictedQuantity  float64        `json:"predicted_quantity"`
	DeliveryRate       float64        `json:"delivery_rate"`
	PredictionError    float64        `json:"prediction_error"`
	PredictionAccuracy float64        `json:"prediction_accuracy"`
	Recommendation     string         `json:"recommendation"`
	Status             DeliveryStatus `json:"status"`
}

type PresenceForecast struct {
	Period             string     `json:"period"`
	PredictedPresences float64    `json:"predicted_presences"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
}

type YearSeries struct {
	Year   int       `json:"year"`
	Values []float64 `json:"values"`
}

type SeasonalTrends struct {
	Data []YearSeries `json:"data"`
}

type ConditionVolume struct {
	Condition string  `json:"condition"`
	Volume    float64 `json:"volume"`
}

type ImpactFactor struct {
	Impact float64           `json:"impact"`
	Values []ConditionVolume `json:"values"`
}

type WeatherImpact struct {
	Temperature   ImpactFactor `json:"temperature"`
	Precipitation ImpactFactor `json:"precipitation"`
	Humidity      ImpactFactor `json:"humidity"`
}

type YearlyDelivery struct {
	Year      int     `json:"year"`
	Delivered float64 `json:"delivered"`
}

type MonthlyDelivery struct {
	Month    string  `json:"month"`
	Year2022 float64 `json:"year2022"`
	Year2023 float64 `json:"year2023"`
	Year2024 float64 `json:"year2024"`
}

type ArticleShare struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type OrderDelivery struct {
	Year      int     `json:"year"`
	Ordered   float64 `json:"ordered"`
	Delivered float64 `json:"delivered"`
}

type DeliveryStats struct {
	YearlyTrend             []YearlyDelivery  `json:"yearlyTrend"`
	MonthlyComparison       []MonthlyDelivery `json:"monthlyComparison"`
	ArticleDistribution     []ArticleShare    `json:"articleDistribution"`
	OrderDeliveryComparison []OrderDelivery   `json:"orderDeliveryComparison"`
}

// HistoryRecord is one row of the forecast service's delivery prediction log.
type HistoryRecord struct {
	ID                int64   `json:"id"`
	Date              string  `json:"date"`
	Article           string  `json:"article"`
	QuantityOrdered   float64 `json:"quantity_ordered"`
	QuantityPredicted float64 `json:"quantity_predicted"`
	DeliveryRate      float64 `json:"delivery_rate"`
	Status            string  `json:"status"`
	Recommendation    string  `json:"recommendation"`
	CreatedAt         string  `json:"created_at"`
}
