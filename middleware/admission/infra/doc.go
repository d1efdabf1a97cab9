// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Store: estado por cliente com os quatro algoritmos de rate limit
//     (token bucket via golang.org/x/time/rate, janela fixa, janela deslizante
//     exata e leaky bucket), sharding por chave e janitor de limpeza
//   - Queue: throttler com fila por prioridade e expiração por timeout
//   - StatsStore em memória, Redis e Prometheus
package infra
