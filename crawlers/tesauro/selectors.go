package tesauro

import "fmt"

// DOM contract of the Tesauro results application.
const (
	resultsTabSelector = "label.by-results"
	resultsTabText     = "SENTENCIAS ESCRITAS"

	cardSelector      = "div.result_card"
	cardTitleSelector = "span.card__title"
	cardLabelSelector = "div.card__info-title"
	cardValueSelector = "div.card__info-value"

	labelProcessNumber = "Número de proceso:"
	labelDate          = "Fecha:"
	labelTheme         = "Tema:"

	detailPanelSelector = "div.side-detail__actors"
	detailLabelSelector = "span.side-detail__label"
	detailValueSelector = "span.side-detail__value"
	labelFilingNumber   = "Número de radicado"

	analysisLinkSelector = "a"
	analysisLinkPattern  = `VER\s+AN[ÁA]LISIS`

	documentActionsSelector = "div.actions"
	downloadButtonSelector  = "div.actions button.btn_primary"
)

func paginationButtonXPath(page int) string {
	return fmt.Sprintf("//button[contains(@aria-label,'Go to page %d')]", page)
}

func currentPageXPath(page int) string {
	return fmt.Sprintf("//button[@aria-current='true' and @aria-label='page %d']", page)
}
