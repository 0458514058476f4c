package speedtest

import "fmt"

// Results итоговые значения теста.
type Results struct {
	// Ping и Jitter в миллисекундах.
	Ping   float64 `json:"ping"`
	Jitter float64 `json:"jitter"`
	// Download и Upload в Mbps.
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

// String форматирует результаты как карточки виджета.
func (r Results) String() string {
	return fmt.Sprintf("Ping %.0f ms, Jitter %.1f ms, Download %.1f Mbps, Upload %.1f Mbps",
		r.Ping, r.Jitter, r.Download, r.Upload)
}

// Quality оценка соединения по скорости загрузки.
type Quality struct {
	Rating string `json:"rating"`
	Advice string `json:"advice"`
}

// Rate оценивает соединение по скорости загрузки в Mbps.
func Rate(downloadMbps float64) Quality {
	var q Quality
	switch {
	case downloadMbps >= 100:
		q.Rating = "Excellent"
	case downloadMbps >= 50:
		q.Rating = "Very Good"
	case downloadMbps >= 30:
		q.Rating = "Good"
	case downloadMbps >= 10:
		q.Rating = "Fair"
	default:
		q.Rating = "Poor"
	}
	// пороги подсказки не совпадают с порогами оценки
	switch {
	case downloadMbps >= 50:
		q.Advice = "Great for 4K streaming, gaming, and large downloads"
	case downloadMbps >= 25:
		q.Advice = "Suitable for HD streaming and video calls"
	default:
		q.Advice = "May experience issues with high-bandwidth activities"
	}
	return q
}

// GaugePercent доля шкалы индикатора 0-100 для speed при максимуме maxSpeed.
func GaugePercent(speed, maxSpeed float64) float64 {
	if maxSpeed <= 0 || speed <= 0 {
		return 0
	}
	return min(speed/maxSpeed*100, 100)
}
