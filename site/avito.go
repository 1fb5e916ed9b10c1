package site

import (
	"time"

	"github.com/use-agent/appraise/extract"
	"github.com/use-agent/appraise/history"
	"github.com/use-agent/appraise/pricing"
)

var avitoTooltips = extract.Cascade{
	"[class*='tooltip']",
	"[class*='Tooltip']",
	"[class*='popup']",
	"[role='tooltip']",
}

// Avito returns the built-in avito.ru profile.
func Avito() *Profile {
	return &Profile{
		Name:   "avito",
		Domain: "avito",
		NotFound: []string{
			"такой страницы не существует",
			"страница не найдена",
			"объявление не найдено",
		},
		Blocked: []string{
			"подтвердите, что вы не робот",
			"доступ ограничен",
			"заблокирован",
			"access denied",
			"проверка безопасности",
		},
		ContentMarker: extract.Cascade{"[data-marker='item-view/title-info']", "h1"},
		Readiness: Readiness{
			Probe:       true,
			Trigger:     extract.Cascade{"text=История цены"},
			Tooltip:     avitoTooltips,
			Marker:      "₽",
			Attempts:    20,
			Interval:    time.Second,
			ReadyStates: []string{"interactive", "complete"},
			Timeout:     60 * time.Second,
		},
		Fields: Fields{
			Title: extract.Cascade{
				"[data-marker='item-view/title-info'] h1",
				"h1[itemprop='name']",
				".title-info-title span",
				"h1",
			},
			Price: extract.Cascade{
				"[data-marker='item-view/item-price']",
				"[class*='style-price-value']",
				"[class*='price-value']",
				"[class*='item-price']",
				"[itemprop='price']",
				".js-item-price",
			},
			PriceInfo: extract.Cascade{
				"[class*='price-info']",
				"[class*='price-sub']",
				"[class*='style-price-sub']",
			},
			Address: extract.Cascade{
				"[data-marker='delivery/location']",
				"[itemprop='address']",
				".style-item-address__string",
			},
			Description: extract.Cascade{
				"[data-marker='item-view/item-description']",
				"[itemprop='description']",
				".item-description-text",
			},
			Seller: extract.Cascade{
				"[data-marker='seller-info/name']",
				".seller-info-name",
				"[class*='seller-info'] a",
			},
			Published: extract.Cascade{
				"[data-marker='item-view/item-date']",
				".style-item-metadata-date",
				"[class*='date-info']",
			},
		},
		PriceFallback: &PriceFallback{
			Selector: "text=₽",
			Words:    []string{"месяц", "год"},
		},
		Markers:      pricing.Russian,
		AddressNoise: []string{"мин."},
		Params: ParamRules{
			Rows: extract.Cascade{
				"[data-marker='item-view/item-params'] li",
				"[class*='params-paramsList'] li",
			},
			AreaFromText: true,
			AreaKeys:     []string{"Общая площадь"},
			LandKeys:     []string{"Площадь участка", "Площадь"},
			LandKey:      "Площадь участка",
		},
		History: History{
			Trigger: extract.Cascade{"text=История цены"},
			Tooltip: avitoTooltips,
			Markers: []string{"₽"},
			MinText: 10,
		},
		Shots: Shots{
			Container: extract.Cascade{"div[class*='item-view-content']"},
			Ads: extract.Cascade{
				"div[class*='item-view-ads']",
				"div[class*='ads']",
				"div[data-marker*='ads']",
			},
			Description: extract.Cascade{
				"[id*='item-view-description']",
				"[class*='item-view-description']",
			},
			DateMarker: "[data-marker='item-view/item-date']",
		},
		Plan:      PlanAvito,
		Zoom:      0.8,
		IDPattern: `_(\d+)(?:\?|$)`,
		Grammar:   history.Russian,
	}
}
