package model

// Ticker is an entry in the default watch list.
type Ticker struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// DefaultTickers is the watch list offered to the dashboard.
var DefaultTickers = []Ticker{
	{Symbol: "SPY", Name: "S&P 500 ETF"},
	{Symbol: "QQQ", Name: "Nasdaq 100 ETF"},
	{Symbol: "NVDA", Name: "Nvidia Corp"},
	{Symbol: "BTC/USD", Name: "Bitcoin"},
	{Symbol: "GOLD", Name: "Gold Futures"},
	{Symbol: "AAPL", Name: "Apple Inc"},
	{Symbol: "TSLA", Name: "Tesla Inc"},
	{Symbol: "MSFT", Name: "Microsoft Corp"},
	{Symbol: "US10Y", Name: "US 10Y Yield"},
	{Symbol: "DXY", Name: "US Dollar Index"},
}
