package site

import (
	"time"

	"github.com/use-agent/appraise/extract"
	"github.com/use-agent/appraise/history"
	"github.com/use-agent/appraise/pricing"
)

// Cian returns the built-in cian.ru profile.
func Cian() *Profile {
	return &Profile{
		Name:   "cian",
		Domain: "cian",
		NotFound: []string{
			"страница не найдена",
			"объявление не найдено",
			"не существует",
		},
		Blocked: []string{
			"подтвердите, что вы не робот",
			"доступ ограничен",
			"заблокирован",
			"access denied",
			"проверка безопасности",
			"captcha",
		},
		ContentMarker: extract.Cascade{"h1", "[data-name='OfferTitle']"},
		Login:         &LoginCheck{Selector: "[data-name='UserRelated']", Phrase: "Войти"},
		Readiness: Readiness{
			ReadyStates: []string{"complete"},
			Timeout:     30 * time.Second,
			Settle:      500 * time.Millisecond,
		},
		Fields: Fields{
			Title: extract.Cascade{
				"h1[data-name='OfferTitle']",
				"h1",
				"[class*='title']",
			},
			Price: extract.Cascade{
				"[data-name='PriceInfo']",
				"[data-name='OfferPrice']",
				"[class*='price-value']",
				"[class*='price']",
				"[itemprop='price']",
			},
			Address: extract.Cascade{
				"[data-name='Geo']",
				"[data-name='Address']",
				"[itemprop='address']",
				"[class*='address']",
			},
			Description: extract.Cascade{
				"[data-name='Description']",
				"[data-name='OfferCardDescription']",
				"[itemprop='description']",
				"[class*='description-text']",
			},
			Published: extract.Cascade{
				"[data-name='PublicationDate']",
				"[class*='publication-date']",
				"[class*='offer-date']",
			},
		},
		Markers:          pricing.Russian,
		PriceFacts:       &PriceFacts{Items: "[data-name='OfferFactItem']", Part: "span"},
		AddressNoise:     []string{"мин."},
		AddressCuts:      []string{"На карте"},
		DescriptionStrip: []string{"Свернуть"},
		Params: ParamRules{
			Rows: extract.Cascade{
				"[data-name*='ObjectFactoids'] div",
				"[class*='features'] li",
				"[class*='offer-card-params'] li",
				"[data-name='OfferCardFeatures'] li",
			},
			FirstGroupWins: true,
			AreaKeys:       []string{"Общая площадь", "Площадь", "Площадь дома"},
			RangeKey:       "Площади",
			LandKeys:       []string{"Площадь участка", "Участок"},
			LandKey:        "Площадь участка",
			FloorKey:       "Этаж",
			Aliases:        map[string]string{"Материал дома": "Материал стен"},
		},
		History: History{
			Trigger: extract.Cascade{
				"[data-name='PriceHistory']",
				"[class*='price-history']",
				"[class*='PriceHistory']",
				"button[data-name='PriceHistory']",
			},
			Tooltip: extract.Cascade{
				"[class*='tooltip']",
				"[class*='Tooltip']",
				"[role='tooltip']",
				"[class*='popup']",
				"[class*='Popup']",
			},
			Markers: []string{"₽", "руб"},
		},
		Shots: Shots{
			Container:         extract.Cascade{"[data-name='OfferCardPageLayout']"},
			ContainerMinWidth: 100,
			TitleAnchor:       extract.Cascade{"h1", "[data-name='OfferTitle']", "[class*='title']"},
			Description: extract.Cascade{
				"[data-name='Description']",
				"[data-name='OfferCardDescription']",
				"[class*='description']",
				"[class*='Description']",
			},
			DescriptionMin: 50,
			Expander: extract.Cascade{
				"span[data-id='toggle'][data-mark='ShutterToggle']",
				"span[data-mark='ShutterToggle']",
				"span[class*='toggle']",
				"[data-name='OfferCardDescription'] button",
				"[data-name='Description'] button",
			},
			ExpanderWords: []string{"узнать больше", "показать"},
			StatsOpener: extract.Cascade{
				"[data-name='OfferStats']",
				"button[data-name='OfferStats']",
				"[class*='offer-stats']",
				"[class*='OfferStats']",
			},
			StatsBlock: extract.Cascade{
				"[data-name='OfferStats']",
				"[class*='offer-stats']",
				"[class*='statistics']",
			},
			Closers: extract.Cascade{
				"div[role='button'][aria-label='Закрыть']",
				"div[class*='close'][role='button']",
				"button[aria-label='Закрыть']",
				"[aria-label='Закрыть']",
			},
		},
		Plan:      PlanCian,
		Zoom:      0.8,
		IDPattern: `/(\d+)/?(?:\?|$)`,
		Grammar:   history.Russian,
	}
}
