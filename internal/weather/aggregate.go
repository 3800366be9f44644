package weather

import (
	"sort"
	"time"
)

// expectedDailyIntervals is the number of reporting intervals a full day of
// hourly collection produces.
const expectedDailyIntervals = 24

// fieldAcc accumulates one optional metric across readings, ignoring absent
// values. Absent never counts as zero.
type fieldAcc struct {
	sum   float64
	min   float64
	max   float64
	count int
}

func (f *fieldAcc) add(v *float64) {
	if v == nil {
		return
	}
	if f.count == 0 || *v < f.min {
		f.min = *v
	}
	if f.count == 0 || *v > f.max {
		f.max = *v
	}
	f.sum += *v
	f.count++
}

func (f *fieldAcc) avg() *float64 {
	if f.count == 0 {
		return nil
	}
	v := f.sum / float64(f.count)
	return &v
}

func (f *fieldAcc) minimum() *float64 {
	if f.count == 0 {
		return nil
	}
	v := f.min
	return &v
}

func (f *fieldAcc) maximum() *float64 {
	if f.count == 0 {
		return nil
	}
	v := f.max
	return &v
}

func (f *fieldAcc) total() *float64 {
	if f.count == 0 {
		return nil
	}
	v := f.sum
	return &v
}

// AggregateDay reduces the readings for one location and one calendar date
// into a DailyAggregate. Zero readings yield nil: "no data" must never be
// presented as a zero-valued day. Each field averages only the readings that
// actually report it.
func AggregateDay(locationID string, date time.Time, readings []Reading) *DailyAggregate {
	if len(readings) == 0 {
		return nil
	}

	var temp, humidity, wind, aqi, pm25, pm10, no2, o3, so2, co, rain fieldAcc
	hours := make(map[int]bool)
	sources := make(map[string]bool)

	for _, r := range readings {
		temp.add(r.Temperature)
		humidity.add(r.Humidity)
		wind.add(r.WindSpeed)
		aqi.add(r.AQI)
		pm25.add(r.PM25)
		pm10.add(r.PM10)
		no2.add(r.NO2)
		o3.add(r.O3)
		so2.add(r.SO2)
		co.add(r.CO)
		rain.add(r.Rainfall)

		hours[r.CapturedAt.UTC().Hour()] = true
		sources[r.Source] = true
	}

	completeness := float64(len(hours)) / float64(expectedDailyIntervals)
	if completeness > 1 {
		completeness = 1
	}

	observed := make([]string, 0, len(sources))
	for s := range sources {
		observed = append(observed, s)
	}
	sort.Strings(observed)

	agg := &DailyAggregate{
		LocationID:      locationID,
		Date:            startOfDay(date),
		Granularity:     GranularityDaily,
		TempMin:         temp.minimum(),
		TempAvg:         temp.avg(),
		TempMax:         temp.maximum(),
		HumidityAvg:     humidity.avg(),
		WindSpeedAvg:    wind.avg(),
		AQIAvg:          aqi.avg(),
		PM25Avg:         pm25.avg(),
		PM10Avg:         pm10.avg(),
		NO2Avg:          no2.avg(),
		O3Avg:           o3.avg(),
		SO2Avg:          so2.avg(),
		COAvg:           co.avg(),
		RainfallTotal:   rain.total(),
		Completeness:    completeness,
		SourcesObserved: observed,
		ReadingCount:    len(readings),
	}

	if agg.AQIAvg != nil {
		agg.AQICategory = CategorizeAQI(*agg.AQIAvg).Label
	}

	return agg
}

// AggregateMonth rolls daily aggregates into one monthly row. Zero daily
// rows yield nil. Completeness is days observed over days in the month.
func AggregateMonth(locationID string, month time.Time, days []DailyAggregate) *DailyAggregate {
	if len(days) == 0 {
		return nil
	}

	var temp, tempMin, tempMax, humidity, wind, aqi, pm25, pm10, no2, o3, so2, co, rain fieldAcc
	sources := make(map[string]bool)
	readingCount := 0

	for _, d := range days {
		temp.add(d.TempAvg)
		tempMin.add(d.TempMin)
		tempMax.add(d.TempMax)
		humidity.add(d.HumidityAvg)
		wind.add(d.WindSpeedAvg)
		aqi.add(d.AQIAvg)
		pm25.add(d.PM25Avg)
		pm10.add(d.PM10Avg)
		no2.add(d.NO2Avg)
		o3.add(d.O3Avg)
		so2.add(d.SO2Avg)
		co.add(d.COAvg)
		rain.add(d.RainfallTotal)

		for _, s := range d.SourcesObserved {
			sources[s] = true
		}
		readingCount += d.ReadingCount
	}

	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := start.AddDate(0, 1, 0).Sub(start).Hours() / 24

	completeness := float64(len(days)) / daysInMonth
	if completeness > 1 {
		completeness = 1
	}

	observed := make([]string, 0, len(sources))
	for s := range sources {
		observed = append(observed, s)
	}
	sort.Strings(observed)

	agg := &DailyAggregate{
		LocationID:  locationID,
		Date:        start,
		Granularity: GranularityMonthly,
		// Monthly extremes are the extreme daily extremes, not the extreme
		// daily means.
		TempMin:         tempMin.minimum(),
		TempAvg:         temp.avg(),
		TempMax:         tempMax.maximum(),
		HumidityAvg:     humidity.avg(),
		WindSpeedAvg:    wind.avg(),
		AQIAvg:          aqi.avg(),
		PM25Avg:         pm25.avg(),
		PM10Avg:         pm10.avg(),
		NO2Avg:          no2.avg(),
		O3Avg:           o3.avg(),
		SO2Avg:          so2.avg(),
		COAvg:           co.avg(),
		RainfallTotal:   rain.total(),
		Completeness:    completeness,
		SourcesObserved: observed,
		ReadingCount:    readingCount,
	}

	if agg.AQIAvg != nil {
		agg.AQICategory = CategorizeAQI(*agg.AQIAvg).Label
	}

	return agg
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
