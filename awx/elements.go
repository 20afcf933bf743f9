package awx

// elements names the quantitative grid element codes of product category 3.
var elements = map[int]string{
	0:  "numerical forecast",
	1:  "sea surface temperature (K)",
	2:  "sea ice distribution",
	3:  "sea ice density",
	4:  "outgoing longwave radiation (W/m2)",
	5:  "normalized difference vegetation index",
	6:  "ratio vegetation index",
	7:  "snow cover",
	8:  "soil moisture (kg/m3)",
	9:  "sunshine (hours)",
	10: "cloud top height (hPa)",
	11: "cloud top temperature (K)",
	12: "low cloud amount",
	13: "high cloud amount",
	14: "precipitation index (mm/1h)",
	15: "precipitation index (mm/6h)",
	16: "precipitation index (mm/12h)",
	17: "precipitation index (mm/24h)",
	18: "upper troposphere water vapor (relative humidity)",
	19: "brightness temperature",
	20: "total cloud amount (percent)",
	21: "cloud classification",
	22: "precipitation estimate (mm/6h)",
	23: "precipitation estimate (mm/24h)",
	24: "clear sky precipitable water (mm)",
	25: "reserved",
	26: "surface incident solar radiation (W/m2)",
	27: "reserved",
	28: "reserved",
	29: "reserved",
	30: "reserved",
	31: "1000hPa relative humidity",
	32: "850hPa relative humidity",
	33: "700hPa relative humidity",
	34: "600hPa relative humidity",
	35: "500hPa relative humidity",
	36: "400hPa relative humidity",
	37: "300hPa relative humidity",
}
