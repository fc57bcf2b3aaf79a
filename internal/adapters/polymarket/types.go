package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Data API ---

// Tipos de actividad que interesan al motor.
const (
	activityTrade  = "TRADE"
	activitySplit  = "SPLIT"
	activityMerge  = "MERGE"
	activityRedeem = "REDEEM"
)

// activityItem es una fila de GET /activity?user=...
// Los importes llegan como números JSON; json.Number evita pasar por float64.
type activityItem struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Timestamp       json.Number `json:"timestamp"`
	ConditionID     string      `json:"conditionId"`
	Type            string      `json:"type"`
	Size            json.Number `json:"size"`
	USDCSize        json.Number `json:"usdcSize"`
	TransactionHash string      `json:"transactionHash"`
	Price           json.Number `json:"price"`
	Asset           string      `json:"asset"`
	Side            string      `json:"side"`
	OutcomeIndex    *int        `json:"outcomeIndex"`
}

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene los campos de un mercado que necesita el motor.
// Gamma serializa los arrays de tokens, outcomes y precios como strings JSON.
type gammaMarket struct {
	ConditionID         string `json:"conditionId"`
	ClobTokenIDs        string `json:"clobTokenIds"`
	Outcomes            string `json:"outcomes"`
	OutcomePrices       string `json:"outcomePrices"`
	Closed              bool   `json:"closed"`
	ClosedTime          string `json:"closedTime"`
	UMAResolutionStatus string `json:"umaResolutionStatus"`
}
